package integration

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/mfg-ops/ordrefab/gateway"
	"github.com/mfg-ops/ordrefab/models"
	"github.com/mfg-ops/ordrefab/tests/testserver"
	"github.com/mfg-ops/ordrefab/tests/testutil"
	"github.com/stretchr/testify/suite"
)

// AuthIntegrationTestSuite checks token handling end to end over HTTP
type AuthIntegrationTestSuite struct {
	suite.Suite
	ctx    context.Context
	server *testserver.Server
}

// SetupTest starts a fresh server for every test
func (suite *AuthIntegrationTestSuite) SetupTest() {
	suite.ctx = context.Background()
	suite.server = testserver.Start(suite.T())
}

func (suite *AuthIntegrationTestSuite) client(opts ...gateway.Option) *gateway.Client {
	opts = append([]gateway.Option{gateway.WithPublicPrefix(testserver.PublicPrefix)}, opts...)
	client, err := gateway.New(suite.server.URL, opts...)
	suite.Require().NoError(err)
	return client
}

func (suite *AuthIntegrationTestSuite) clientFor(token string) *gateway.Client {
	return suite.client(gateway.WithCredentials(gateway.StaticToken(token)))
}

// TestHealthNeedsNoToken tests the public routes
func (suite *AuthIntegrationTestSuite) TestHealthNeedsNoToken() {
	suite.NoError(suite.client().Health(suite.ctx))
}

// TestMissingToken tests a protected route without credential
func (suite *AuthIntegrationTestSuite) TestMissingToken() {
	_, err := suite.client().ListOrders(suite.ctx)
	suite.Require().Error(err)
	suite.Equal(http.StatusUnauthorized, gateway.StatusOf(err))
	suite.Equal("INVALID_TOKEN", gateway.CodeOf(err))
}

// TestRejectedTokens tests malformed, foreign and expired tokens
func (suite *AuthIntegrationTestSuite) TestRejectedTokens() {
	planner := suite.server.Fixtures.Planner.Username

	foreign, err := testutil.MintToken("another-secret", testutil.TestJWTIssuer, testutil.TestJWTAudience, planner, "", time.Hour)
	suite.Require().NoError(err)
	expired, err := testutil.MintToken(testutil.TestJWTSecret, testutil.TestJWTIssuer, testutil.TestJWTAudience, planner, "", -time.Hour)
	suite.Require().NoError(err)
	otherAudience, err := testutil.MintToken(testutil.TestJWTSecret, testutil.TestJWTIssuer, "someone-else", planner, "", time.Hour)
	suite.Require().NoError(err)

	for name, token := range map[string]string{
		"malformed":      "not-a-jwt",
		"wrong secret":   foreign,
		"expired":        expired,
		"wrong audience": otherAudience,
	} {
		_, err := suite.clientFor(token).ListOrders(suite.ctx)
		suite.Equal(http.StatusUnauthorized, gateway.StatusOf(err), name)
	}
}

// TestViewerCanReadButNotWrite tests the role check on write routes
func (suite *AuthIntegrationTestSuite) TestViewerCanReadButNotWrite() {
	f := suite.server.Fixtures
	client := suite.clientFor(suite.server.Token(f.Viewer.Username))

	orders, err := client.ListOrders(suite.ctx)
	suite.Require().NoError(err)
	suite.Empty(orders)

	_, err = client.CreateOrder(suite.ctx, models.CreateOrderRequest{
		Code:             "OF-400",
		Quantity:         1,
		StartDate:        models.MustParseDate("2024-01-11"),
		EndDate:          models.MustParseDate("2024-01-12"),
		ProductID:        f.Product.ID,
		ProductionLineID: f.Line.ID,
		OwnerID:          f.Viewer.ID,
	})
	suite.Equal(http.StatusForbidden, gateway.StatusOf(err))
	suite.Equal("INSUFFICIENT_ROLE", gateway.CodeOf(err))
}

// TestFirstSightProvisioning tests unknown subjects become users, taking
// the role claim when present
func (suite *AuthIntegrationTestSuite) TestFirstSightProvisioning() {
	user, err := suite.clientFor(suite.server.Token("newcomer")).CurrentUser(suite.ctx)
	suite.Require().NoError(err)
	suite.Equal("newcomer", user.Username)
	suite.Equal(models.RoleDefault, user.Role)

	admin, err := suite.clientFor(testutil.MustMintToken("chief", models.RoleAdmin)).CurrentUser(suite.ctx)
	suite.Require().NoError(err)
	suite.Equal(models.RoleAdmin, admin.Role)

	var count int64
	suite.Require().NoError(suite.server.DB.Model(&models.User{}).Count(&count).Error)
	suite.Equal(int64(4), count, "two fixture users plus two provisioned")
}

// TestAuthIntegrationTestSuite runs the auth integration test suite
func TestAuthIntegrationTestSuite(t *testing.T) {
	suite.Run(t, new(AuthIntegrationTestSuite))
}
