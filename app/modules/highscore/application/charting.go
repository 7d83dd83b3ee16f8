package highscoreservice

import (
	"bytes"
	"time"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

// ChartPalette holds the colours used by rendered charts.
type ChartPalette struct {
	Background  drawing.Color
	PrimaryLine drawing.Color
	AccentLine  drawing.Color
	TextColor   drawing.Color
}

// DefaultChartPalette is a dark theme with a gold accent.
var DefaultChartPalette = ChartPalette{
	Background:  drawing.ColorFromHex("101418"),
	PrimaryLine: drawing.ColorFromHex("3fb68b"),
	AccentLine:  drawing.ColorFromHex("e0b341"),
	TextColor:   drawing.ColorFromHex("e6e6e6"),
}

// GenerateScoreHistoryChart renders a PNG step line of a record's score from
// creation through every raise.
func GenerateScoreHistoryChart(record ScoreRecordView, history []ScoreRaiseView, palette ChartPalette) ([]byte, error) {
	if len(history) == 0 {
		return renderNoDataPlaceholder(palette)
	}

	// each raise is drawn as a flat segment followed by a jump
	xValues := make([]time.Time, 0, 2*len(history)+1)
	yValues := make([]float64, 0, 2*len(history)+1)

	xValues = append(xValues, record.CreatedAt)
	yValues = append(yValues, 0)
	for _, entry := range history {
		xValues = append(xValues, entry.RaisedAt, entry.RaisedAt)
		yValues = append(yValues, float64(entry.Previous), float64(entry.New))
	}

	mainSeries := chart.TimeSeries{
		Name:    "High Score",
		XValues: xValues,
		YValues: yValues,
		Style: chart.Style{
			StrokeColor: palette.PrimaryLine,
			StrokeWidth: 2,
			DotWidth:    3,
			DotColor:    palette.AccentLine,
		},
	}

	graph := chart.Chart{
		Width:  800,
		Height: 400,
		Background: chart.Style{
			FillColor: palette.Background,
		},
		Canvas: chart.Style{
			FillColor: palette.Background,
		},
		XAxis: chart.XAxis{
			Name:           "Date",
			ValueFormatter: chart.TimeValueFormatterWithFormat("2006-01-02 15:04"),
			Style: chart.Style{
				FontColor: palette.TextColor,
			},
		},
		YAxis: chart.YAxis{
			Name: "Score",
			Style: chart.Style{
				FontColor: palette.TextColor,
			},
		},
		Series: []chart.Series{mainSeries},
	}

	buffer := bytes.NewBuffer([]byte{})
	if err := graph.Render(chart.PNG, buffer); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

// renderNoDataPlaceholder draws a message over an invisible series; the
// chart renderer refuses to draw without one.
func renderNoDataPlaceholder(palette ChartPalette) ([]byte, error) {
	const (
		width  = 400
		height = 200
		msg    = "No score raises yet"
	)

	epoch := time.Unix(0, 0).UTC()
	hidden := chart.Style{Hidden: true}

	graph := chart.Chart{
		Width:  width,
		Height: height,
		Background: chart.Style{
			FillColor: palette.Background,
		},
		Canvas: chart.Style{
			FillColor: palette.Background,
		},
		XAxis: chart.XAxis{Style: hidden},
		YAxis: chart.YAxis{
			Style: hidden,
			Range: &chart.ContinuousRange{Min: 0, Max: 1},
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Style:   hidden,
				XValues: []time.Time{epoch, epoch.Add(time.Hour)},
				YValues: []float64{0, 0},
			},
		},
		Elements: []chart.Renderable{
			func(r chart.Renderer, cb chart.Box, chartDefaults chart.Style) {
				r.SetFontColor(palette.TextColor)
				r.SetFontSize(12.0)
				tb := r.MeasureText(msg)
				x := (cb.Width() - tb.Width()) / 2
				y := (cb.Height() + tb.Height()) / 2
				r.Text(msg, x, y)
			},
		},
	}

	buffer := bytes.NewBuffer([]byte{})
	if err := graph.Render(chart.PNG, buffer); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}
