// Package testserver runs the order API over a real listener for tests that
// drive it through the gateway client
package testserver

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mfg-ops/ordrefab/config"
	"github.com/mfg-ops/ordrefab/controllers"
	"github.com/mfg-ops/ordrefab/middleware"
	"github.com/mfg-ops/ordrefab/tests/testutil"
	"gorm.io/gorm"
)

// PublicPrefix is where the server mounts its unauthenticated routes
const PublicPrefix = "/api/public/"

// Server is a running order API backed by a private sqlite database
type Server struct {
	*httptest.Server
	DB       *gorm.DB
	Fixtures testutil.Fixtures
}

// Config returns the server configuration the test tokens are minted for
func Config() *config.Config {
	return &config.Config{
		GoEnv:            "test",
		JWTSecret:        testutil.TestJWTSecret,
		JWTIssuer:        testutil.TestJWTIssuer,
		JWTAudience:      testutil.TestJWTAudience,
		PublicPathPrefix: PublicPrefix,
	}
}

// Start seeds the fixtures, pins the controllers' clock on the fixture day
// and serves the routes with real token checks. Everything is torn down
// when t ends.
func Start(t *testing.T) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.NewTestDB(t)
	f := testutil.SeedFixtures(t, db)
	controllers.SetClock(f.Clock)

	router := gin.New()
	router.Use(gin.Recovery())
	controllers.RegisterRoutes(router, PublicPrefix,
		middleware.EnsureValidToken(Config(), nil),
		middleware.LoadUser(config.GetDB, nil),
	)

	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		srv.Close()
		controllers.SetClock(nil)
	})
	return &Server{Server: srv, DB: db, Fixtures: f}
}

// Token mints a valid token for username
func (s *Server) Token(username string) string {
	return testutil.MustMintToken(username, "")
}
