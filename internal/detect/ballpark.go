package detect

// ballparkFactors scales Total Sweet Spot confidence by a park's
// run-scoring tendency. Only the Total Sweet Spots strategy uses this
// table; whether it generalizes to other strategies is left
// undetermined, so it stays local here.
var ballparkFactors = map[string]float64{
	"Coors Field":              1.3,
	"Fenway Park":              1.15,
	"Globe Life Field":         1.15,
	"Great American Ball Park": 1.15,
	"loanDepot park":           0.85,
	"Oakland Coliseum":         0.85,
	"T-Mobile Park":            0.85,
	"Petco Park":               0.85,
	"Oracle Park":              0.85,
}

func ballparkFactor(park string) float64 {
	if f, ok := ballparkFactors[park]; ok {
		return f
	}
	return 1.0
}
