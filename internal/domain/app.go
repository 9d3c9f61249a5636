package domain

import "time"

// AuthenticationType defines what credential a published application
// requires on the signaling connection.
type AuthenticationType string

const (
	// AuthNone requires no extra credential.
	AuthNone AuthenticationType = "NONE"

	// AuthOpenID forwards the user's ID token from the IdP.
	AuthOpenID AuthenticationType = "OPENID"

	// AuthNucleus forwards a Nucleus access token so the stream can reach a
	// Nucleus server.
	AuthNucleus AuthenticationType = "NUCLEUS"
)

// FunctionStatus is the deployment status reported by the compute endpoint
// for a published application.
type FunctionStatus string

const (
	// FunctionStatusAll is a filter-only value matching every status.
	FunctionStatusAll FunctionStatus = "ALL"

	// FunctionStatusUnknown means the function does not exist upstream or
	// its status could not be retrieved.
	FunctionStatusUnknown FunctionStatus = "UNKNOWN"

	FunctionStatusActive    FunctionStatus = "ACTIVE"
	FunctionStatusInactive  FunctionStatus = "INACTIVE"
	FunctionStatusDeploying FunctionStatus = "DEPLOYING"
	FunctionStatusError     FunctionStatus = "ERROR"
)

// Function is one deployed compute function as reported by the control
// plane inventory.
type Function struct {
	Ref    FunctionRef
	Name   string
	Status FunctionStatus
}

// PublishedApp is a catalog entry describing a streamable application.
// Sessions hold a weak reference to it: deleting the app nulls the
// reference without invalidating existing sessions.
type PublishedApp struct {
	ID                 string             `json:"id"`
	Slug               string             `json:"slug"`
	Function           FunctionRef        `json:"-"`
	Title              string             `json:"title"`
	Description        string             `json:"description"`
	Version            string             `json:"version"`
	Image              string             `json:"image"`
	Icon               string             `json:"icon"`
	Category           string             `json:"category"`
	ProductArea        string             `json:"product_area"`
	PublishedAt        *time.Time         `json:"published_at"`
	AuthenticationType AuthenticationType `json:"authentication_type"`
}

// PortalPage is a sidebar menu entry on the portal home page.
type PortalPage struct {
	Name  string `json:"name"`
	URL   string `json:"url"`
	Order int    `json:"order"`
}
