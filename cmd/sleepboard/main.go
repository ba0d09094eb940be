package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/JuhanV/Sleep-Game/internal/tokencipher"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newCommand().Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:  "sleepboard",
		Usage: "Oura sleep score leaderboard",
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP server and the metric sync worker",
				Action: serveAction,
			},
			{
				Name:  "keygen",
				Usage: "print a new TOKEN_CIPHER_KEY",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "env",
						Usage: "print as a .env assignment",
					},
				},
				Action: keygenAction,
			},
		},
		DefaultCommand: "serve",
	}
}

func serveAction(ctx context.Context, _ *cli.Command) error {
	app := newApp()
	if err := app.Err(); err != nil {
		return fmt.Errorf("build application: %w", err)
	}

	startCtx, cancel := context.WithTimeout(ctx, app.StartTimeout())
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return fmt.Errorf("start application: %w", err)
	}

	exitCode := 0
	select {
	case <-ctx.Done():
	case sig := <-app.Wait():
		exitCode = sig.ExitCode
	}

	stopCtx, cancelStop := context.WithTimeout(context.Background(), app.StopTimeout())
	defer cancelStop()
	if err := app.Stop(stopCtx); err != nil {
		return fmt.Errorf("stop application: %w", err)
	}
	if exitCode != 0 {
		return cli.Exit("application stopped with an error", exitCode)
	}
	return nil
}

func keygenAction(_ context.Context, cmd *cli.Command) error {
	key, err := tokencipher.GenerateKey()
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}
	encoded := tokencipher.EncodeKey(key)
	if cmd.Bool("env") {
		encoded = "TOKEN_CIPHER_KEY=" + encoded
	}
	_, err = fmt.Fprintln(cmd.Root().Writer, encoded)
	return err
}
