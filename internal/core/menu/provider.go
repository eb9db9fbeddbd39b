package menu

// Provider 提供啟動時固定的菜單快照
type Provider struct {
	full            *Catalog
	visible         *Catalog
	seasonalEnabled bool
}

// NewProvider 建立菜單提供者；seasonalEnabled 為 false 時隱藏季節分類
func NewProvider(catalog *Catalog, seasonalEnabled bool) *Provider {
	visible := *catalog
	visible.Categories = make([]Category, 0, len(catalog.Categories))
	for _, c := range catalog.Categories {
		if c.Seasonal && !seasonalEnabled {
			continue
		}
		visible.Categories = append(visible.Categories, c)
	}

	return &Provider{
		full:            catalog,
		visible:         &visible,
		seasonalEnabled: seasonalEnabled,
	}
}

// Snapshot 回傳可見菜單，呼叫端不得修改
func (p *Provider) Snapshot() *Catalog {
	return p.visible
}

// SeasonalEnabled 季節分類是否開啟
func (p *Provider) SeasonalEnabled() bool {
	return p.seasonalEnabled
}
