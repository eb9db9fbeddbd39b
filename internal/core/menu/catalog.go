package menu

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"

	"gomitas-bot/internal/pkg/common"
)

//go:embed catalog.json
var defaultCatalogJSON []byte

// PresentationType 包裝方式
type PresentationType string

const (
	// Dry 不需要選擇口味
	Dry PresentationType = "dry"
	// Wet 每一份都需要選擇口味
	Wet PresentationType = "wet"
)

// DetectionOrder 快速下單偵測包裝方式的優先順序
var DetectionOrder = []PresentationType{Wet, Dry}

// Catalog 菜單
type Catalog struct {
	Categories    []Category                    `json:"categories"`
	Flavors       []Flavor                      `json:"flavors"`
	FlavorAliases map[string]string             `json:"flavor_aliases"`
	TypeKeywords  map[PresentationType][]string `json:"type_keywords"`
}

// Category 商品分類
type Category struct {
	Name             string         `json:"name"`
	Icon             string         `json:"icon"`
	Seasonal         bool           `json:"seasonal,omitempty"`
	ProductIconsLine string         `json:"product_icons_line,omitempty"`
	Presentations    []Presentation `json:"presentations"`
}

// Presentation 包裝方式與其商品；商品順序即選單編號
type Presentation struct {
	Name   string           `json:"name"`
	Type   PresentationType `json:"type"`
	Weight string           `json:"weight"`
	Items  []Item           `json:"items"`
}

// RequiresFlavor 是否需要逐份選擇口味
func (p Presentation) RequiresFlavor() bool {
	return p.Type == Wet
}

// Item 商品
type Item struct {
	Name  string  `json:"name"`
	Icon  string  `json:"icon,omitempty"`
	Price float64 `json:"price"`
}

// Flavor 醬料口味
type Flavor struct {
	Name  string `json:"name"`
	Label string `json:"label"`
}

// FlavorNames 依順序回傳口味名稱
func (c *Catalog) FlavorNames() []string {
	names := make([]string, len(c.Flavors))
	for i, f := range c.Flavors {
		names[i] = f.Name
	}
	return names
}

// Presentation 依索引取得包裝方式，索引超出範圍時 ok 為 false
func (c *Catalog) Presentation(catIdx, presIdx int) (Presentation, bool) {
	if catIdx < 0 || catIdx >= len(c.Categories) {
		return Presentation{}, false
	}
	cat := c.Categories[catIdx]
	if presIdx < 0 || presIdx >= len(cat.Presentations) {
		return Presentation{}, false
	}
	return cat.Presentations[presIdx], true
}

// Load 載入菜單；path 為空時使用內建菜單
func Load(path string) (*Catalog, error) {
	data := defaultCatalogJSON
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read menu file: %w", err)
		}
		data = raw
	}

	var catalog Catalog
	if err := common.DecodeJSONStrict(bytes.NewReader(data), &catalog); err != nil {
		return nil, fmt.Errorf("failed to parse menu: %w", err)
	}
	if err := catalog.Validate(); err != nil {
		return nil, fmt.Errorf("invalid menu: %w", err)
	}
	return &catalog, nil
}

// Validate 檢查菜單完整性
func (c *Catalog) Validate() error {
	if len(c.Categories) == 0 {
		return fmt.Errorf("menu has no categories")
	}

	hasWet := false
	for _, cat := range c.Categories {
		if len(cat.Presentations) == 0 {
			return fmt.Errorf("category %q has no presentations", cat.Name)
		}
		for _, p := range cat.Presentations {
			switch p.Type {
			case Dry:
			case Wet:
				hasWet = true
			default:
				return fmt.Errorf("presentation %q has unknown type %q", p.Name, p.Type)
			}
			if len(p.Items) == 0 {
				return fmt.Errorf("presentation %q of %q has no items", p.Name, cat.Name)
			}
			for _, it := range p.Items {
				if it.Price <= 0 {
					return fmt.Errorf("item %q has invalid price %v", it.Name, it.Price)
				}
			}
		}
	}

	if hasWet && len(c.Flavors) == 0 {
		return fmt.Errorf("wet presentations require at least one flavor")
	}

	canonical := make(map[string]bool, len(c.Flavors))
	for _, f := range c.Flavors {
		canonical[f.Name] = true
	}
	for alias, target := range c.FlavorAliases {
		if !canonical[target] {
			return fmt.Errorf("flavor alias %q points to unknown flavor %q", alias, target)
		}
	}

	for _, t := range DetectionOrder {
		if len(c.TypeKeywords[t]) == 0 {
			return fmt.Errorf("no keywords for presentation type %q", t)
		}
	}
	return nil
}
