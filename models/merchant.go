package models

import "github.com/shopspring/decimal"

type Theme struct {
	Primary      string `json:"primary" yaml:"primary"`
	Secondary    string `json:"secondary" yaml:"secondary"`
	BorderRadius string `json:"borderRadius,omitempty" yaml:"border_radius"`
}

// Features are the per-merchant switches for ordering modes and account extras.
type Features struct {
	DineIn   bool `json:"dineIn" yaml:"dine_in"`
	Pickup   bool `json:"pickup" yaml:"pickup"`
	Delivery bool `json:"delivery" yaml:"delivery"`
	Express  bool `json:"express" yaml:"express"`
	TopUp    bool `json:"topup" yaml:"topup"`
	Coupons  bool `json:"coupons" yaml:"coupons"`
}

type Merchant struct {
	ID       string   `json:"id" yaml:"id"`
	Name     string   `json:"name" yaml:"name"`
	Slogan   string   `json:"slogan" yaml:"slogan"`
	Logo     string   `json:"logo" yaml:"logo"`
	Mascot   string   `json:"mascot" yaml:"mascot"`
	Address  string   `json:"address" yaml:"address"`
	Theme    Theme    `json:"theme" yaml:"theme"`
	Features Features `json:"features" yaml:"features"`
}

type Product struct {
	ID          string           `json:"id" yaml:"id"`
	Name        string           `json:"name" yaml:"name"`
	Price       decimal.Decimal  `json:"price" yaml:"-"`
	VIPPrice    *decimal.Decimal `json:"vipPrice,omitempty" yaml:"-"`
	Image       string           `json:"image" yaml:"image"`
	Description string           `json:"description,omitempty" yaml:"description"`
	Category    string           `json:"category" yaml:"category"`
	Specs       []string         `json:"specs,omitempty" yaml:"specs"`
}

// HasSpec reports whether spec is one of the product's selectable specs.
// An empty spec is accepted for products without specs.
func (p Product) HasSpec(spec string) bool {
	if spec == "" {
		return len(p.Specs) == 0
	}
	for _, s := range p.Specs {
		if s == spec {
			return true
		}
	}
	return false
}

// Scene maps a scanned code to a merchant and, for table codes, a table.
type Scene struct {
	Code           string `json:"code" yaml:"code"`
	MerchantID     string `json:"merchant_id" yaml:"merchant"`
	TableNumber    string `json:"table_no,omitempty" yaml:"table"`
	OrderingPaused bool   `json:"ordering_paused,omitempty" yaml:"ordering_paused"`
	PayDisabled    bool   `json:"pay_disabled,omitempty" yaml:"pay_disabled"`
}
