package domain

// Page names a screen of the trading UI.
type Page string

const (
	PageDashboard            Page = "dashboard"
	PageMarketplace          Page = "marketplace"
	PagePortfolio            Page = "portfolio"
	PageBondDetail           Page = "bondDetail"
	PageSystemAnalytics      Page = "system-analytics"
	PageIntegrations         Page = "integrations"
	PageHardwareAcceleration Page = "hardware-acceleration"
	PageProfileSettings      Page = "profile-settings"
)

// Pages lists every routable page.
var Pages = []Page{
	PageDashboard,
	PageMarketplace,
	PagePortfolio,
	PageBondDetail,
	PageSystemAnalytics,
	PageIntegrations,
	PageHardwareAcceleration,
	PageProfileSettings,
}

// ViewState is the in-process navigation target. BondID is only meaningful
// for the bondDetail page.
type ViewState struct {
	Page   Page   `json:"page"`
	BondID string `json:"bondId,omitempty"`
}
