package dump

import (
	"fmt"

	"github.com/fatih/color"

	"github.com/signadot/tob-format/go-tob/tag"
)

type Colorable struct {
	Type tag.Type
	Attr ColorAttr
}

type ColorAttr int

const (
	ValueColor ColorAttr = iota
	KeyColor
	SepColor
)

type Colors struct {
	Default func(string, ...any) string
	Map     map[Colorable]func(string, ...any) string
}

func colorDefault(f string, args ...any) string {
	return color.New().SprintfFunc()(f, args...)
}

func NewColors() *Colors {
	colors := &Colors{
		Default: colorDefault,
		Map:     map[Colorable]func(string, ...any) string{},
	}
	types := []tag.Type{
		tag.Nil, tag.Bool, tag.Int, tag.Uint, tag.Float, tag.Double,
		tag.Str, tag.Bin, tag.Array, tag.Map, tag.Ext,
	}
	for _, t := range types {
		able := Colorable{Type: t, Attr: SepColor}
		colors.Map[able] = color.RGB(196, 128, 128).SprintfFunc()
	}

	able := Colorable{Attr: ValueColor}

	able.Type = tag.Nil
	colors.Map[able] = color.RGB(168, 0, 196).SprintfFunc()

	able.Type = tag.Bool
	colors.Map[able] = color.CyanString

	for _, t := range []tag.Type{tag.Int, tag.Uint, tag.Float, tag.Double} {
		able.Type = t
		colors.Map[able] = color.RGB(128, 216, 236).SprintfFunc()
	}

	able.Type = tag.Str
	colors.Map[able] = color.RGB(8, 196, 16).SprintfFunc()
	able.Attr = KeyColor
	colors.Map[able] = color.RGB(196, 96, 16).SprintfFunc()
	able.Attr = ValueColor

	able.Type = tag.Bin
	colors.Map[able] = color.RGB(128, 128, 128).SprintfFunc()

	able.Type = tag.Ext
	colors.Map[able] = color.RGB(198, 198, 46).SprintfFunc()

	return colors
}

func (c *Colors) sprintf(able Colorable, f string, args ...any) string {
	if c == nil {
		return fmt.Sprintf(f, args...)
	}
	if fn, ok := c.Map[able]; ok {
		return fn(f, args...)
	}
	return c.Default(f, args...)
}
