package metabase

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Signed embed URLs are consumed by Metabase's own embed renderer; the token
// carries the resource reference, locked filter params, and an expiry, all
// signed with the shared embedding secret.

func (c *Client) signEmbedToken(resource map[string]int, params map[string]interface{}, userEmail string) (string, error) {
	if params == nil {
		params = map[string]interface{}{}
	}
	claims := jwt.MapClaims{
		"resource": resource,
		"params":   params,
		"exp":      time.Now().Add(c.embedExpiry).Unix(),
	}
	if userEmail != "" {
		claims["email"] = userEmail
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(c.embeddingSecret)
}

// DashboardEmbedURL returns a browser-loadable viewer URL for a dashboard,
// with optional locked filter parameters.
func (c *Client) DashboardEmbedURL(dashboardID int, userEmail string, filters map[string]interface{}) (string, error) {
	token, err := c.signEmbedToken(map[string]int{"dashboard": dashboardID}, filters, userEmail)
	if err != nil {
		return "", fmt.Errorf("signing dashboard embed token: %w", err)
	}
	return c.publicURL + "/embed/dashboard/" + token + "#bordered=false&titled=false", nil
}

// CollectionEmbedURL returns a browser-loadable URL embedding a whole
// workspace collection.
func (c *Client) CollectionEmbedURL(collectionID int) (string, error) {
	token, err := c.signEmbedToken(map[string]int{"collection": collectionID}, nil, "")
	if err != nil {
		return "", fmt.Errorf("signing collection embed token: %w", err)
	}
	return c.publicURL + "/embed/collection/" + token + "#bordered=false&titled=true", nil
}

// DashboardEditorURL points owners at the dashboard editor in the Metabase UI.
func (c *Client) DashboardEditorURL(dashboardID int) string {
	return fmt.Sprintf("%s/dashboard/%d", c.publicURL, dashboardID)
}

// EmbedExpiry exposes the configured token lifetime for response payloads.
func (c *Client) EmbedExpiry() time.Duration {
	return c.embedExpiry
}
