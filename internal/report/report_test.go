package report

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rekord/internal/core"
)

func tableOf(years ...int) *core.Table {
	t := &core.Table{Columns: core.Columns, Records: []core.Record{}}
	for i, y := range years {
		t.Records = append(t.Records, core.Record{Year: y, Number: int64(i + 1)})
	}
	return t
}

func TestAggregate_Scenario(t *testing.T) {
	counts := Aggregate(tableOf(2024, 2024, 2024))
	assert.Equal(t, []core.YearCount{{Year: 2024, Count: 3}}, counts)
}

func TestAggregate_SumEqualsRowsAndStrictlyAscending(t *testing.T) {
	tables := []*core.Table{
		tableOf(),
		tableOf(2025),
		tableOf(2025, 2023, 2024, 2023, 2025, 2025),
		tableOf(2029, 2020, 2020, 2021),
	}
	for _, tbl := range tables {
		counts := Aggregate(tbl)
		assert.Equal(t, tbl.Len(), Total(counts))
		for i := 1; i < len(counts); i++ {
			assert.Less(t, counts[i-1].Year, counts[i].Year, "years must be strictly ascending")
		}
	}
}

func TestAggregate_Empty(t *testing.T) {
	assert.Empty(t, Aggregate(nil))
	assert.NotNil(t, Aggregate(&core.Table{}))
	assert.Equal(t, 0, Max(nil))
}

func TestBuildChart_OneBarPerYear(t *testing.T) {
	counts := []core.YearCount{{Year: 2023, Count: 2}, {Year: 2024, Count: 4}, {Year: 2025, Count: 1}}
	opts := DefaultChartOptions()
	c := BuildChart(counts, opts)

	require.Len(t, c.Bars, 3)
	assert.Equal(t, ChartTitle, c.Title)
	assert.Equal(t, ChartXLabel, c.XLabel)
	assert.Equal(t, ChartYLabel, c.YLabel)
	assert.Equal(t, 7, c.Total)
	assert.Equal(t, -45.0, c.LabelRotation)

	tallest := c.Bars[1]
	assert.Equal(t, "2024", tallest.Label)
	assert.InDelta(t, c.PlotBottom-c.PlotTop, tallest.H, 0.01, "max count fills the plot when it is a tick multiple")

	for i, b := range c.Bars {
		assert.Equal(t, counts[i].Count, b.Count)
		assert.InDelta(t, c.PlotBottom, b.Y+b.H, 0.02, "bars stand on the x axis")
		assert.Less(t, b.TextY, b.Y, "count label sits above the bar")
		assert.InDelta(t, b.X+b.W/2, b.TextX, 0.02)
		if i > 0 {
			assert.Greater(t, b.X, c.Bars[i-1].X)
		}
	}
	assert.Greater(t, c.Bars[1].H, c.Bars[0].H)
	assert.Greater(t, c.Bars[0].H, c.Bars[2].H)
}

func TestBuildChart_Ticks(t *testing.T) {
	c := BuildChart([]core.YearCount{{Year: 2024, Count: 12}}, DefaultChartOptions())
	require.NotEmpty(t, c.Ticks)
	assert.Equal(t, 0, c.Ticks[0].Value)
	last := c.Ticks[len(c.Ticks)-1]
	assert.GreaterOrEqual(t, last.Value, 12)
	assert.InDelta(t, c.PlotTop, last.Y, 0.01)
}

func TestBuildChart_Empty(t *testing.T) {
	c := BuildChart(nil, DefaultChartOptions())
	assert.Empty(t, c.Bars)
	assert.Equal(t, 0, c.Total)
}

func TestNiceScale(t *testing.T) {
	cases := []struct{ max, step, top int }{
		{0, 1, 1},
		{1, 1, 1},
		{3, 1, 3},
		{12, 5, 15},
		{100, 20, 100},
	}
	for _, tc := range cases {
		step, top := niceScale(tc.max)
		assert.Equal(t, tc.step, step, "step for %d", tc.max)
		assert.Equal(t, tc.top, top, "top for %d", tc.max)
	}
}
