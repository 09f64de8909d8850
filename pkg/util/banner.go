package util

import (
	"fmt"
	"io"
	"strings"

	"github.com/common-nighthawk/go-figure"
)

// 定义颜色常量
const (
	ColorReset  = "\x1b[0m"
	ColorRed    = "\x1b[1;31m"
	ColorGreen  = "\x1b[1;32m"
	ColorYellow = "\x1b[1;33m"
	ColorBlue   = "\x1b[1;34m"
	ColorCyan   = "\x1b[1;36m"
)

var colors = map[string]string{
	"red":    ColorRed,
	"green":  ColorGreen,
	"yellow": ColorYellow,
	"blue":   ColorBlue,
	"cyan":   ColorCyan,
}

// 颜色名转 ANSI 颜色码，未知颜色不着色
func colorCode(name string) string {
	if c, ok := colors[strings.ToLower(name)]; ok {
		return c
	}
	return ColorReset
}

// PrintBanner 打印整体统一颜色的 ASCII banner，附带一行版本/目标信息
func PrintBanner(w io.Writer, text, color, subtitle string) {
	fig := figure.NewFigure(text, "", true)
	ansiColor := colorCode(color)
	for _, line := range fig.Slicify() {
		fmt.Fprintln(w, ansiColor+line+ColorReset)
	}
	if subtitle != "" {
		fmt.Fprintln(w, ansiColor+subtitle+ColorReset)
	}
}
