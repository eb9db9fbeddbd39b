package menu

import (
	"fmt"
	"strconv"
	"strings"
)

// FormatPrice 菜單價格，不帶多餘小數
func FormatPrice(p float64) string {
	return "$" + strconv.FormatFloat(p, 'f', -1, 64)
}

// FormatCategories 分類清單
func FormatCategories(c *Catalog) string {
	lines := []string{"Elige categoría:"}
	for i, cat := range c.Categories {
		lines = append(lines, fmt.Sprintf("%d) %s", i+1, strings.TrimSpace(cat.Icon+" "+cat.Name)))
	}
	lines = append(lines, "\nResponde con el número.")
	return strings.Join(lines, "\n")
}

// FormatPresentations 某分類的包裝方式清單
func FormatPresentations(c *Catalog, catIdx int) string {
	cat := c.Categories[catIdx]
	lines := []string{fmt.Sprintf("%s — Elige presentación:", cat.Name)}
	for i, p := range cat.Presentations {
		price := ""
		if len(p.Items) > 0 {
			price = " " + FormatPrice(p.Items[0].Price)
		}
		lines = append(lines, fmt.Sprintf("%d) %s %s%s", i+1, p.Name, p.Weight, price))
	}
	lines = append(lines, "\nPuedes escribir tu pedido directo en cualquier momento.")
	return strings.Join(lines, "\n")
}

// FormatItems 某包裝方式的商品清單
func FormatItems(c *Catalog, catIdx, presIdx int) string {
	p := c.Categories[catIdx].Presentations[presIdx]
	lines := []string{fmt.Sprintf("%s %s — Elige producto:", p.Name, p.Weight)}
	for i, it := range p.Items {
		label := it.Name
		if it.Icon != "" {
			label = it.Icon + " " + it.Name
		}
		lines = append(lines, fmt.Sprintf("%d) %s %s", i+1, label, FormatPrice(it.Price)))
	}
	tip := "\nResponde: 3  o  3x2."
	if p.RequiresFlavor() {
		tip += "\nTip: después eliges chamoy."
	}
	lines = append(lines, tip)
	return strings.Join(lines, "\n")
}

// FormatFlavors 口味清單；step 與 total 皆大於 0 時顯示進度
func FormatFlavors(c *Catalog, step, total int) string {
	title := "Elige chamoy:"
	if step > 0 && total > 0 {
		title = fmt.Sprintf("Chamoy (%d/%d):", step, total)
	}
	lines := []string{title}
	for i, f := range c.Flavors {
		label := f.Label
		if label == "" {
			label = f.Name
		}
		lines = append(lines, fmt.Sprintf("%d) %s", i+1, label))
	}
	lines = append(lines, "\nResponde con el número.")
	return strings.Join(lines, "\n")
}
