package risk

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/rzzdr/portfolio-risk-sim/pkg/models"
	"github.com/rzzdr/portfolio-risk-sim/pkg/utils/errors"
)

// Correlation is a labelled correlation matrix, ready for a heatmap.
// Entries involving a constant series are undefined and encode as null.
type Correlation struct {
	Labels []string                 `json:"labels"`
	Matrix [][]models.NullableFloat `json:"matrix"`
}

// CorrelationMatrix returns the Pearson correlation between every pair of
// instruments. Pairs involving a constant column are undefined.
func CorrelationMatrix(returns *models.ReturnSeries) (*Correlation, error) {
	if returns == nil || returns.Len() < 2 {
		return nil, errors.EmptyInput("need at least 2 observations to correlate")
	}

	x := mat.NewDense(returns.Len(), returns.Width(), nil)
	for i := 0; i < returns.Len(); i++ {
		x.SetRow(i, returns.Row(i))
	}
	return correlate(returns.Instruments(), x), nil
}

// SectorCorrelation averages instrument returns within each sector per day and
// correlates the sector series. Instruments without a sector are ignored.
// Sectors are ordered by name.
func SectorCorrelation(returns *models.ReturnSeries, sectors map[string]string) (*Correlation, error) {
	if returns == nil || returns.Len() < 2 {
		return nil, errors.EmptyInput("need at least 2 observations to correlate")
	}

	members := make(map[string][]int)
	for j, inst := range returns.Instruments() {
		if sector, ok := sectors[inst]; ok && sector != "" {
			members[sector] = append(members[sector], j)
		}
	}
	if len(members) == 0 {
		return nil, errors.NotFound("no instrument in the return series has a sector")
	}

	labels := make([]string, 0, len(members))
	for sector := range members {
		labels = append(labels, sector)
	}
	sort.Strings(labels)

	x := mat.NewDense(returns.Len(), len(labels), nil)
	for i := 0; i < returns.Len(); i++ {
		for k, sector := range labels {
			var sum float64
			for _, j := range members[sector] {
				sum += returns.At(i, j)
			}
			x.Set(i, k, sum/float64(len(members[sector])))
		}
	}
	return correlate(labels, x), nil
}

func correlate(labels []string, x *mat.Dense) *Correlation {
	n := len(labels)
	var corr mat.SymDense
	stat.CorrelationMatrix(&corr, x, nil)

	rows := make([][]models.NullableFloat, n)
	for i := range rows {
		rows[i] = make([]models.NullableFloat, n)
		for j := range rows[i] {
			if v := corr.At(i, j); !math.IsNaN(v) && !math.IsInf(v, 0) {
				rows[i][j] = models.Defined(v)
			}
		}
	}
	return &Correlation{Labels: append([]string(nil), labels...), Matrix: rows}
}
