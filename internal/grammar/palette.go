// internal/grammar/palette.go
package grammar

// PaletteEntry 嵌套深度对应的视觉样式
type PaletteEntry struct {
	Class string
	Color string
}

// DepthPalette 固定的深度配色表，顺序即分配顺序
var DepthPalette = []PaletteEntry{
	{Class: "poly-depth-0", Color: "#61AFEF"},
	{Class: "poly-depth-1", Color: "#98C379"},
	{Class: "poly-depth-2", Color: "#E5C07B"},
	{Class: "poly-depth-3", Color: "#C678DD"},
	{Class: "poly-depth-4", Color: "#E06C75"},
	{Class: "poly-depth-5", Color: "#56B6C2"},
}

// ColorIndex depth mod 配色表长度
func ColorIndex(depth int) int {
	if depth < 0 {
		depth = -depth
	}
	return depth % len(DepthPalette)
}

// PaletteFor 返回深度对应的配色
func PaletteFor(depth int) PaletteEntry {
	return DepthPalette[ColorIndex(depth)]
}
