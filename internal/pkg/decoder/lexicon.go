package decoder

import (
	"image"
	"image/color"
	"math/rand/v2"
)

const (
	EOSToken = "<eos>"
	PadToken = "<pad>"
)

// Prototype renders a synthetic image that stands for a visual concept.
type Prototype func(size int) image.Image

// DefaultPrototypes are the reference renderings used to ground the lexicon.
func DefaultPrototypes() map[string]Prototype {
	return map[string]Prototype{
		"black":     solid(color.RGBA{A: 255}),
		"charcoal":  solid(color.RGBA{R: 40, G: 40, B: 42, A: 255}),
		"white":     solid(color.RGBA{R: 255, G: 255, B: 255, A: 255}),
		"gray":      solid(color.RGBA{R: 128, G: 128, B: 128, A: 255}),
		"beige":     solid(color.RGBA{R: 220, G: 205, B: 175, A: 255}),
		"red":       solid(color.RGBA{R: 210, G: 30, B: 35, A: 255}),
		"green":     solid(color.RGBA{R: 40, G: 160, B: 60, A: 255}),
		"blue":      solid(color.RGBA{R: 40, G: 80, B: 200, A: 255}),
		"yellow":    solid(color.RGBA{R: 235, G: 210, B: 40, A: 255}),
		"orange":    solid(color.RGBA{R: 240, G: 140, B: 30, A: 255}),
		"purple":    solid(color.RGBA{R: 120, G: 50, B: 160, A: 255}),
		"sky":       vgradient(color.RGBA{R: 60, G: 120, B: 230, A: 255}, color.RGBA{R: 190, G: 220, B: 250, A: 255}),
		"landscape": split(color.RGBA{R: 110, G: 170, B: 240, A: 255}, color.RGBA{R: 60, G: 140, B: 50, A: 255}),
		"sunset":    vgradient(color.RGBA{R: 250, G: 150, B: 40, A: 255}, color.RGBA{R: 90, G: 40, B: 120, A: 255}),
		"dusk":      vgradient(color.RGBA{R: 150, G: 90, B: 200, A: 255}, color.RGBA{R: 240, G: 170, B: 210, A: 255}),
		"gradient":  hgradient(color.RGBA{A: 255}, color.RGBA{R: 255, G: 255, B: 255, A: 255}),
		"night":     dots(color.RGBA{R: 5, G: 5, B: 20, A: 255}, color.RGBA{R: 255, G: 250, B: 220, A: 255}, 7),
		"checker":   checker(color.RGBA{A: 255}, color.RGBA{R: 255, G: 255, B: 255, A: 255}, 8),
		"stripes":   stripes(color.RGBA{R: 20, G: 20, B: 20, A: 255}, color.RGBA{R: 235, G: 235, B: 235, A: 255}, 4),
		"noise":     noise(11),
		"blocks":    blocks(23),
	}
}

// Attribute groups.
const (
	groupLight      = "light"
	groupContrast   = "contrast"
	groupTexture    = "texture"
	groupEdges      = "edges"
	groupSaturation = "saturation"
	groupTones      = "tones"
)

func tok(text string, class Class, register string, bias float64, protos ...string) Token {
	return Token{Text: text, Class: class, Register: register, Bias: bias, Prototypes: protos}
}

func attr(text, register, group string, protos ...string) Token {
	return Token{Text: text, Class: ClassAttr, Register: register, Group: group, Prototypes: protos}
}

// DefaultLexicon is the bundled caption vocabulary.
func DefaultLexicon() []Token {
	return []Token{
		tok(EOSToken, ClassEOS, RegisterCore, 0),
		tok(PadToken, ClassSpecial, RegisterCore, 0),
		tok("a", ClassDet, RegisterCore, 0),
		tok("with", ClassWith, RegisterCore, 0),
		tok(",", ClassComma, RegisterCore, 0),
		tok("and", ClassAnd, RegisterCore, 0),

		tok("dark", ClassAdj, RegisterPlain, 0.2, "black", "charcoal", "night"),
		tok("black", ClassAdj, RegisterPlain, 0, "black"),
		tok("bright", ClassAdj, RegisterPlain, 0.2, "white", "yellow"),
		tok("white", ClassAdj, RegisterPlain, 0, "white"),
		tok("gray", ClassAdj, RegisterPlain, 0, "gray", "charcoal"),
		tok("red", ClassAdj, RegisterPlain, 0, "red"),
		tok("green", ClassAdj, RegisterPlain, 0, "green", "landscape"),
		tok("blue", ClassAdj, RegisterPlain, 0, "blue", "sky"),
		tok("yellow", ClassAdj, RegisterPlain, 0, "yellow"),
		tok("orange", ClassAdj, RegisterPlain, 0, "orange", "sunset"),
		tok("purple", ClassAdj, RegisterPlain, 0, "purple", "dusk"),
		tok("colorful", ClassAdj, RegisterPlain, 0, "blocks", "noise"),
		tok("striped", ClassAdj, RegisterPlain, 0, "stripes"),
		tok("checkered", ClassAdj, RegisterPlain, 0, "checker"),
		tok("plain", ClassAdj, RegisterPlain, 0, "gray", "beige"),
		tok("smooth", ClassAdj, RegisterPlain, 0, "gradient", "sky"),

		tok("moody", ClassAdj, RegisterPoetic, 0.1, "black", "charcoal"),
		tok("radiant", ClassAdj, RegisterPoetic, 0.1, "white", "yellow"),
		tok("serene", ClassAdj, RegisterPoetic, 0.1, "blue", "sky"),
		tok("vibrant", ClassAdj, RegisterPoetic, 0.1, "blocks", "red"),
		tok("luminous", ClassAdj, RegisterPoetic, 0, "white", "sunset"),
		tok("shadowy", ClassAdj, RegisterPoetic, 0, "night", "black"),
		tok("dreamy", ClassAdj, RegisterPoetic, 0, "dusk", "gradient"),
		tok("bold", ClassAdj, RegisterPoetic, 0, "checker", "red"),
		tok("tranquil", ClassAdj, RegisterPoetic, 0, "landscape", "green"),

		tok("image", ClassNoun, RegisterPlain, 0.6),
		tok("scene", ClassNoun, RegisterPlain, 0.3),
		tok("picture", ClassNoun, RegisterPlain, 0.2),
		tok("pattern", ClassNoun, RegisterPlain, 0, "checker", "stripes"),
		tok("sky", ClassNoun, RegisterPlain, 0, "sky", "blue"),
		tok("landscape", ClassNoun, RegisterPlain, 0, "landscape"),
		tok("sunset", ClassNoun, RegisterPlain, 0, "sunset"),
		tok("night", ClassNoun, RegisterPlain, 0, "night"),
		tok("field", ClassNoun, RegisterPlain, 0.1, "green", "black", "gray"),

		tok("frame", ClassNoun, RegisterTechnical, 0.4),
		tok("composition", ClassNoun, RegisterTechnical, 0.3),
		tok("surface", ClassNoun, RegisterTechnical, 0, "gray", "beige", "white"),
		tok("gradient", ClassNoun, RegisterTechnical, 0, "gradient", "sunset", "dusk"),
		tok("grid", ClassNoun, RegisterTechnical, 0, "checker"),

		tok("vista", ClassNoun, RegisterPoetic, 0, "landscape", "sky"),
		tok("dreamscape", ClassNoun, RegisterPoetic, 0, "dusk"),
		tok("tapestry", ClassNoun, RegisterPoetic, 0, "blocks", "noise"),
		tok("moment", ClassNoun, RegisterPoetic, 0.3),
		tok("canvas", ClassNoun, RegisterPoetic, 0, "white", "beige"),

		attr("low brightness", RegisterTechnical, groupLight, "black", "charcoal", "night"),
		attr("high brightness", RegisterTechnical, groupLight, "white", "yellow"),
		attr("balanced exposure", RegisterTechnical, groupLight, "gray", "gradient"),
		attr("dark shadows", RegisterTechnical, groupLight, "black", "night"),
		attr("bright highlights", RegisterTechnical, groupLight, "white", "night"),
		attr("strong contrast", RegisterTechnical, groupContrast, "checker", "stripes", "night"),
		attr("low contrast", RegisterTechnical, groupContrast, "gray", "black", "white"),
		attr("uniform texture", RegisterTechnical, groupTexture, "black", "white", "gray", "red"),
		attr("dense texture", RegisterTechnical, groupTexture, "noise"),
		attr("sharp edges", RegisterTechnical, groupEdges, "checker", "stripes"),
		attr("no visible edges", RegisterTechnical, groupEdges, "black", "white", "gray"),
		attr("saturated colors", RegisterTechnical, groupSaturation, "red", "blue", "blocks"),
		attr("muted colors", RegisterTechnical, groupSaturation, "gray", "charcoal", "beige"),
		attr("warm tones", RegisterTechnical, groupTones, "orange", "red", "yellow", "sunset"),
		attr("cool tones", RegisterTechnical, groupTones, "blue", "green", "sky"),
		attr("neutral tones", RegisterTechnical, groupTones, "gray", "black", "white"),
		attr("repeating pattern", RegisterTechnical, "", "checker", "stripes"),
		attr("smooth gradients", RegisterTechnical, "", "gradient", "sunset", "sky"),

		attr("soft shadows", RegisterPoetic, groupLight, "black", "charcoal"),
		attr("gentle light", RegisterPoetic, groupLight, "white", "gradient"),
		attr("deep tones", RegisterPoetic, groupTones, "black", "purple"),
		attr("a warm glow", RegisterPoetic, groupTones, "orange", "yellow", "sunset"),
		attr("cool hues", RegisterPoetic, groupTones, "blue", "green"),
		attr("vivid colors", RegisterPoetic, groupSaturation, "blocks", "red"),
		attr("striking contrast", RegisterPoetic, groupContrast, "checker", "night"),
		attr("rich texture", RegisterPoetic, groupTexture, "noise"),
		attr("playful patterns", RegisterPoetic, "", "checker", "stripes"),
		attr("quiet stillness", RegisterPoetic, "", "gray", "black", "blue"),
		attr("endless depth", RegisterPoetic, "", "black", "night"),
	}
}

func solid(c color.RGBA) Prototype {
	return func(size int) image.Image {
		img := image.NewRGBA(image.Rect(0, 0, size, size))
		for i := 0; i < len(img.Pix); i += 4 {
			img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
		}
		return img
	}
}

func lerp(a, b color.RGBA, t float64) color.RGBA {
	mix := func(x, y uint8) uint8 { return uint8(float64(x) + (float64(y)-float64(x))*t) }
	return color.RGBA{R: mix(a.R, b.R), G: mix(a.G, b.G), B: mix(a.B, b.B), A: 255}
}

func vgradient(top, bottom color.RGBA) Prototype {
	return func(size int) image.Image {
		img := image.NewRGBA(image.Rect(0, 0, size, size))
		for y := 0; y < size; y++ {
			c := lerp(top, bottom, float64(y)/float64(max(size-1, 1)))
			for x := 0; x < size; x++ {
				img.SetRGBA(x, y, c)
			}
		}
		return img
	}
}

func hgradient(left, right color.RGBA) Prototype {
	return func(size int) image.Image {
		img := image.NewRGBA(image.Rect(0, 0, size, size))
		for x := 0; x < size; x++ {
			c := lerp(left, right, float64(x)/float64(max(size-1, 1)))
			for y := 0; y < size; y++ {
				img.SetRGBA(x, y, c)
			}
		}
		return img
	}
}

func split(top, bottom color.RGBA) Prototype {
	return func(size int) image.Image {
		img := image.NewRGBA(image.Rect(0, 0, size, size))
		for y := 0; y < size; y++ {
			c := top
			if y >= size/2 {
				c = bottom
			}
			for x := 0; x < size; x++ {
				img.SetRGBA(x, y, c)
			}
		}
		return img
	}
}

func checker(a, b color.RGBA, cell int) Prototype {
	return func(size int) image.Image {
		img := image.NewRGBA(image.Rect(0, 0, size, size))
		for y := 0; y < size; y++ {
			for x := 0; x < size; x++ {
				c := a
				if (x/cell+y/cell)%2 == 1 {
					c = b
				}
				img.SetRGBA(x, y, c)
			}
		}
		return img
	}
}

func stripes(a, b color.RGBA, width int) Prototype {
	return func(size int) image.Image {
		img := image.NewRGBA(image.Rect(0, 0, size, size))
		for y := 0; y < size; y++ {
			for x := 0; x < size; x++ {
				c := a
				if (x/width)%2 == 1 {
					c = b
				}
				img.SetRGBA(x, y, c)
			}
		}
		return img
	}
}

func dots(bg, fg color.RGBA, seed uint64) Prototype {
	return func(size int) image.Image {
		img := solid(bg)(size).(*image.RGBA)
		rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
		n := max(size*size/200, 4)
		for i := 0; i < n; i++ {
			img.SetRGBA(rng.IntN(size), rng.IntN(size), fg)
		}
		return img
	}
}

func noise(seed uint64) Prototype {
	return func(size int) image.Image {
		img := image.NewRGBA(image.Rect(0, 0, size, size))
		rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
		for y := 0; y < size; y++ {
			for x := 0; x < size; x++ {
				img.SetRGBA(x, y, color.RGBA{R: uint8(rng.IntN(256)), G: uint8(rng.IntN(256)), B: uint8(rng.IntN(256)), A: 255})
			}
		}
		return img
	}
}

func blocks(seed uint64) Prototype {
	palette := []color.RGBA{
		{R: 230, G: 40, B: 50, A: 255},
		{R: 250, G: 200, B: 30, A: 255},
		{R: 40, G: 180, B: 90, A: 255},
		{R: 30, G: 110, B: 230, A: 255},
		{R: 200, G: 60, B: 200, A: 255},
		{R: 250, G: 130, B: 20, A: 255},
	}
	return func(size int) image.Image {
		img := image.NewRGBA(image.Rect(0, 0, size, size))
		rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
		cell := max(size/4, 1)
		colors := make([]color.RGBA, 16)
		for i := range colors {
			colors[i] = palette[rng.IntN(len(palette))]
		}
		for y := 0; y < size; y++ {
			for x := 0; x < size; x++ {
				cx, cy := min(x/cell, 3), min(y/cell, 3)
				img.SetRGBA(x, y, colors[cy*4+cx])
			}
		}
		return img
	}
}
