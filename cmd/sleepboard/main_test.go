package main

import (
	"bytes"
	"context"
	"net"
	"strconv"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/JuhanV/Sleep-Game/internal/config"
	"github.com/JuhanV/Sleep-Game/internal/server"
)

func TestKeygen(t *testing.T) {
	var out bytes.Buffer
	cmd := newCommand()
	cmd.Writer = &out

	require.NoError(t, cmd.Run(context.Background(), []string{"sleepboard", "keygen", "--env"}))

	line := strings.TrimSpace(out.String())
	require.True(t, strings.HasPrefix(line, "TOKEN_CIPHER_KEY="))
	key, err := config.DecodeKey(strings.TrimPrefix(line, "TOKEN_CIPHER_KEY="))
	require.NoError(t, err)
	require.Len(t, key, 32)
}

func TestProviderConfigFromEnvironment(t *testing.T) {
	provider := newProviderConfig(config.Config{
		OuraClientID:    "id",
		OuraAPIURL:      "https://api.ouraring.com",
		OuraTokenURL:    "https://api.ouraring.com/oauth/token",
		OuraRedirectURI: "http://localhost:8080/auth/oura/callback",
		OuraScopes:      []string{"email", "daily"},
	})
	require.Equal(t, "https://api.ouraring.com/v2/usercollection/personal_info", provider.IdentityURL)
	require.Equal(t, []string{"email", "daily"}, provider.OAuth2().Scopes)
}

type recordingShutdowner struct {
	calls int
	opts  []fx.ShutdownOption
}

func (r *recordingShutdowner) Shutdown(opts ...fx.ShutdownOption) error {
	r.calls++
	r.opts = append(r.opts, opts...)
	return nil
}

func TestServeHTTPShutsDownWhenPortTaken(t *testing.T) {
	taken, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer taken.Close()
	port := strconv.Itoa(taken.Addr().(*net.TCPAddr).Port)

	gin.SetMode(gin.TestMode)
	srv := server.NewHTTPServer(gin.New(), config.Config{HTTPPort: port}, zap.NewNop())
	shutdowner := &recordingShutdowner{}

	serveHTTP(context.Background(), srv, shutdowner, zap.NewNop())
	require.Equal(t, 1, shutdowner.calls)
	require.Len(t, shutdowner.opts, 1)
}

func TestServeHTTPCleanStopKeepsApp(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := server.NewHTTPServer(gin.New(), config.Config{HTTPPort: "0"}, zap.NewNop())
	shutdowner := &recordingShutdowner{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	serveHTTP(ctx, srv, shutdowner, zap.NewNop())
	require.Zero(t, shutdowner.calls)
}
