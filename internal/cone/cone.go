// Package cone holds the Orton pyrometric cone table and generates
// cone-fire profiles from it.
package cone

import (
	"fmt"
	"math"
	"strings"

	"kilnfire"
)

// Speed selects the final-ramp rate of a cone firing.
type Speed int

const (
	SpeedSlow Speed = iota
	SpeedMedium
	SpeedFast
)

var speedRampCH = [3]float64{60, 150, 300}
var speedNames = [3]string{"Slow", "Medium", "Fast"}

// ParseSpeed maps the API strings onto a Speed.
func ParseSpeed(s string) (Speed, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "slow":
		return SpeedSlow, nil
	case "medium", "":
		return SpeedMedium, nil
	case "fast":
		return SpeedFast, nil
	}
	return SpeedMedium, fmt.Errorf("unknown cone speed %q", s)
}

// RampCH returns the final-segment ramp rate for the speed.
func (s Speed) RampCH() float64 { return speedRampCH[s] }

func (s Speed) String() string { return speedNames[s] }

type entry struct {
	name  string
	tempC [3]float64 // slow, medium, fast
}

// Orton Ceramic Foundation published deformation temperatures, degC, for
// heating rates of 60/150/300 degC per hour.
var table = []entry{
	{"022", [3]float64{586, 590, 605}},
	{"021", [3]float64{600, 605, 616}},
	{"020", [3]float64{626, 634, 638}},
	{"019", [3]float64{656, 671, 678}},
	{"018", [3]float64{686, 698, 715}},
	{"017", [3]float64{704, 715, 736}},
	{"016", [3]float64{742, 748, 769}},
	{"015", [3]float64{751, 764, 788}},
	{"014", [3]float64{757, 762, 807}},
	{"013", [3]float64{807, 815, 837}},
	{"012", [3]float64{843, 853, 861}},
	{"011", [3]float64{857, 867, 875}},
	{"010", [3]float64{891, 894, 903}},
	{"09", [3]float64{917, 923, 928}},
	{"08", [3]float64{945, 955, 983}},
	{"07", [3]float64{973, 984, 1008}},
	{"06", [3]float64{991, 999, 1023}},
	{"05.5", [3]float64{1011, 1020, 1043}},
	{"05", [3]float64{1031, 1046, 1066}},
	{"04", [3]float64{1050, 1060, 1083}},
	{"03", [3]float64{1086, 1101, 1115}},
	{"02", [3]float64{1101, 1120, 1138}},
	{"01", [3]float64{1117, 1137, 1154}},
	{"1", [3]float64{1136, 1154, 1162}},
	{"2", [3]float64{1142, 1162, 1173}},
	{"3", [3]float64{1152, 1168, 1181}},
	{"4", [3]float64{1162, 1182, 1196}},
	{"5", [3]float64{1177, 1196, 1207}},
	{"6", [3]float64{1201, 1222, 1240}},
	{"7", [3]float64{1215, 1239, 1255}},
	{"8", [3]float64{1236, 1252, 1274}},
	{"9", [3]float64{1260, 1280, 1285}},
	{"10", [3]float64{1285, 1305, 1315}},
	{"11", [3]float64{1294, 1315, 1326}},
	{"12", [3]float64{1306, 1326, 1355}},
	{"13", [3]float64{1321, 1348, 1380}},
	{"14", [3]float64{1388, 1395, 1410}},
}

// Names lists every cone in firing order, coolest first.
func Names() []string {
	out := make([]string, len(table))
	for i, e := range table {
		out[i] = e.name
	}
	return out
}

// TargetTempC looks up the deformation temperature of a cone at a speed.
func TargetTempC(name string, speed Speed) (float64, error) {
	for _, e := range table {
		if e.name == name {
			return e.tempC[speed], nil
		}
	}
	return 0, fmt.Errorf("unknown cone %q", name)
}

// Options selects the optional segments of a generated cone firing.
type Options struct {
	Preheat  bool
	SlowCool bool
}

// Generate deterministically builds a 3-6 segment cone-fire profile:
// optional preheat, water-smoke ramp, quartz-zone ramp, the speed-dependent
// final ramp with a 10-minute soak, and an optional two-stage slow cool
// through quartz inversion when the target allows it.
func Generate(name string, speed Speed, opts Options) (kilnfire.FiringProfile, error) {
	target, err := TargetTempC(name, speed)
	if err != nil {
		return kilnfire.FiringProfile{}, err
	}

	id := fmt.Sprintf("cone-%s-%s", name, speed)
	id = strings.Map(func(r rune) rune {
		if r == '.' || r == ' ' {
			return '-'
		}
		return r
	}, id)

	p := kilnfire.FiringProfile{
		ID:   id,
		Name: fmt.Sprintf("Cone %s (%s)", name, speed),
		Description: fmt.Sprintf("Orton cone %s at %s speed (%.0f°C/hr). Target: %.0f°C.",
			name, speed, speed.RampCH(), target),
	}

	if opts.Preheat {
		p.Segments = append(p.Segments, kilnfire.FiringSegment{
			Name: "Preheat", RampRateCH: 80, TargetTempC: 120, HoldMinutes: 30,
		})
	}
	p.Segments = append(p.Segments,
		kilnfire.FiringSegment{Name: "Water smoke", RampRateCH: 60, TargetTempC: 220},
		kilnfire.FiringSegment{Name: "Quartz zone", RampRateCH: 100, TargetTempC: 600},
		kilnfire.FiringSegment{
			Name:        fmt.Sprintf("Ramp to cone %s", name),
			RampRateCH:  speed.RampCH(),
			TargetTempC: target,
			HoldMinutes: 10,
		},
	)
	if opts.SlowCool && target > 650 {
		p.Segments = append(p.Segments,
			kilnfire.FiringSegment{Name: "Cool to inversion", RampRateCH: -150, TargetTempC: 650},
			kilnfire.FiringSegment{Name: "Slow quartz inversion", RampRateCH: -50, TargetTempC: 500},
		)
	}

	for i := range p.Segments {
		p.Segments[i].ID = fmt.Sprintf("%d", i+1)
	}

	p.MaxTempC = target
	p.EstimatedDurationMin = estimateMinutes(p.Segments)
	return p, nil
}

// estimateMinutes sums time-to-target at each segment's ramp rate, starting
// from room temperature, plus holds.
func estimateMinutes(segs []kilnfire.FiringSegment) int {
	const roomTempC = 20.0

	total := 0.0
	cur := roomTempC
	for _, s := range segs {
		if math.Abs(s.RampRateCH) > 0.1 {
			total += math.Abs((s.TargetTempC-cur)/s.RampRateCH) * 60
		}
		total += float64(s.HoldMinutes)
		cur = s.TargetTempC
	}
	return int(total)
}
