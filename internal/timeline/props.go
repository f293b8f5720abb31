package timeline

import (
	"math"
	"sort"
)

// Prop describes one animatable property and its default.
type Prop interface {
	defaults(path string, into Values)
}

// NumberProp is a scalar. Range is an editor hint only; values outside it
// are passed through untouched.
type NumberProp struct {
	Default float64
	Range   [2]float64
}

func Number(def float64) NumberProp {
	return NumberProp{Default: def}
}

func NumberInRange(def, lo, hi float64) NumberProp {
	return NumberProp{Default: def, Range: [2]float64{lo, hi}}
}

func (p NumberProp) defaults(path string, into Values) {
	into[path] = p.Default
}

// RGBAProp is a color keyframed as one {r,g,b,a} value.
type RGBAProp struct {
	R, G, B, A float64
}

func RGBA(r, g, b, a float64) RGBAProp {
	return RGBAProp{R: r, G: g, B: b, A: a}
}

func (p RGBAProp) defaults(path string, into Values) {
	into[path+".r"] = p.R
	into[path+".g"] = p.G
	into[path+".b"] = p.B
	into[path+".a"] = p.A
}

// Compound groups props under named keys.
type Compound map[string]Prop

func (c Compound) defaults(path string, into Values) {
	for k, p := range c {
		sub := k
		if path != "" {
			sub = path + "." + k
		}
		p.defaults(sub, into)
	}
}

// Vec3 is a compound of x, y and z numbers.
func Vec3(x, y, z float64) Compound {
	return Compound{"x": Number(x), "y": Number(y), "z": Number(z)}
}

// Values is the full value set of one object, keyed by dotted prop path.
type Values map[string]float64

func (v Values) Number(path string) float64 {
	return v[path]
}

func (v Values) Vec3(path string) (x, y, z float64) {
	return v[path+".x"], v[path+".y"], v[path+".z"]
}

func (v Values) RGBA(path string) (r, g, b, a float64) {
	return v[path+".r"], v[path+".g"], v[path+".b"], v[path+".a"]
}

func (v Values) Clone() Values {
	out := make(Values, len(v))
	for k, x := range v {
		out[k] = x
	}
	return out
}

// Equal reports whether both sets hold the same paths and values.
// NaN compares equal to NaN so a NaN value does not re-notify forever.
func (v Values) Equal(o Values) bool {
	if len(v) != len(o) {
		return false
	}
	for k, a := range v {
		b, ok := o[k]
		if !ok {
			return false
		}
		if a != b && !(math.IsNaN(a) && math.IsNaN(b)) {
			return false
		}
	}
	return true
}

// Paths lists the prop paths in sorted order.
func (v Values) Paths() []string {
	out := make([]string, 0, len(v))
	for k := range v {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
