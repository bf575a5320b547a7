package catalog

import (
	"context"
	_ "embed"
	"fmt"
	"os"

	"scan-order/models"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

//go:embed default_catalog.yaml
var defaultCatalog []byte

type fileProduct struct {
	models.Product `yaml:",inline"`
	Price          string `yaml:"price"`
	VIPPrice       string `yaml:"vip_price"`
}

type fileMerchant struct {
	models.Merchant `yaml:",inline"`
	Menu            []fileProduct `yaml:"menu"`
}

type fileCatalog struct {
	Merchants []fileMerchant `yaml:"merchants"`
	Scenes    []models.Scene `yaml:"scenes"`
}

// Static is an immutable in-memory directory loaded from YAML.
type Static struct {
	merchants []models.Merchant
	byID      map[string]models.Merchant
	menus     map[string][]models.Product
	scenes    map[string]models.Scene
}

// Default returns the built-in directory.
func Default() *Static {
	s, err := ParseStatic(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("built-in catalog: %v", err))
	}
	return s
}

// LoadStatic reads a catalog file. An empty path returns the built-in directory.
func LoadStatic(path string) (*Static, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	return ParseStatic(data)
}

func ParseStatic(data []byte) (*Static, error) {
	var doc fileCatalog
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	s := &Static{
		byID:   make(map[string]models.Merchant),
		menus:  make(map[string][]models.Product),
		scenes: make(map[string]models.Scene),
	}
	for _, fm := range doc.Merchants {
		m := fm.Merchant
		if m.ID == "" {
			return nil, fmt.Errorf("merchant without id")
		}
		if _, dup := s.byID[m.ID]; dup {
			return nil, fmt.Errorf("duplicate merchant %q", m.ID)
		}
		menu := make([]models.Product, 0, len(fm.Menu))
		for _, fp := range fm.Menu {
			p := fp.Product
			price, err := decimal.NewFromString(fp.Price)
			if err != nil {
				return nil, fmt.Errorf("merchant %s product %s: price %q: %w", m.ID, p.ID, fp.Price, err)
			}
			if price.IsNegative() {
				return nil, fmt.Errorf("merchant %s product %s: negative price", m.ID, p.ID)
			}
			p.Price = price
			if fp.VIPPrice != "" {
				vip, err := decimal.NewFromString(fp.VIPPrice)
				if err != nil {
					return nil, fmt.Errorf("merchant %s product %s: vip_price %q: %w", m.ID, p.ID, fp.VIPPrice, err)
				}
				p.VIPPrice = &vip
			}
			menu = append(menu, p)
		}
		s.merchants = append(s.merchants, m)
		s.byID[m.ID] = m
		s.menus[m.ID] = menu
	}
	for _, sc := range doc.Scenes {
		if sc.Code == "" {
			return nil, fmt.Errorf("scene without code")
		}
		if _, ok := s.byID[sc.MerchantID]; !ok {
			return nil, fmt.Errorf("scene %q: unknown merchant %q", sc.Code, sc.MerchantID)
		}
		s.scenes[sc.Code] = sc
	}
	return s, nil
}

func (s *Static) Merchants(context.Context) ([]models.Merchant, error) {
	out := make([]models.Merchant, len(s.merchants))
	copy(out, s.merchants)
	return out, nil
}

func (s *Static) Merchant(_ context.Context, id string) (models.Merchant, error) {
	m, ok := s.byID[id]
	if !ok {
		return models.Merchant{}, fmt.Errorf("%w: %s", ErrMerchantNotFound, id)
	}
	return m, nil
}

func (s *Static) Menu(_ context.Context, merchantID string) ([]models.Product, error) {
	menu, ok := s.menus[merchantID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMerchantNotFound, merchantID)
	}
	out := make([]models.Product, len(menu))
	copy(out, menu)
	return out, nil
}

func (s *Static) Product(ctx context.Context, merchantID, productID string) (models.Product, error) {
	menu, err := s.Menu(ctx, merchantID)
	if err != nil {
		return models.Product{}, err
	}
	for _, p := range menu {
		if p.ID == productID {
			return p, nil
		}
	}
	return models.Product{}, fmt.Errorf("%w: %s/%s", ErrProductNotFound, merchantID, productID)
}

func (s *Static) Scene(_ context.Context, code string) (models.Scene, error) {
	sc, ok := s.scenes[code]
	if !ok {
		return models.Scene{}, fmt.Errorf("%w: %q", ErrSceneNotFound, code)
	}
	return sc, nil
}
