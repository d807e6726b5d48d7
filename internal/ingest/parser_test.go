package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/bondsim/internal/domain"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestParser(opts ...Option) *Parser {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewParser(logger, append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)...)
}

func TestParse_ThreeRowExample(t *testing.T) {
	csv := "ISIN,Price\nINE000000001,100\nINE000000002,105\nINE000000003,95\n"
	bonds, err := newTestParser().Parse(context.Background(), "bonds.csv", strings.NewReader(csv), nil)
	require.NoError(t, err)
	require.Len(t, bonds, 3)

	wantIDs := []string{"INE000000001", "INE000000002", "INE000000003"}
	wantPrices := []float64{100, 105, 95}
	for i, b := range bonds {
		assert.Equal(t, wantIDs[i], b.ID)
		assert.Equal(t, wantIDs[i], b.ISIN)
		assert.Equal(t, wantPrices[i], b.CurrentPrice)
		assert.InDelta(t, wantPrices[i]*1.005, b.AIFairValue, 1e-6)
		assert.InDelta(t, wantPrices[i]*1.002, b.StandardFairValue, 1e-6)
	}
}

func TestParse_Defaults(t *testing.T) {
	csv := "isin_code\nINE123\n"
	bonds, err := newTestParser().Parse(context.Background(), "x.CSV", strings.NewReader(csv), nil)
	require.NoError(t, err)
	require.Len(t, bonds, 1)

	b := bonds[0]
	assert.Equal(t, "INE123", b.Issuer)
	assert.Equal(t, 0.0, b.Coupon)
	assert.Equal(t, 100.0, b.CurrentPrice)
	assert.Equal(t, 0.0, b.Volume)
	assert.Equal(t, domain.RatingBBB, b.CreditRating)
	assert.Equal(t, 2031, b.MaturityDate.Year())
}

func TestParse_AliasesAndQuoting(t *testing.T) {
	csv := strings.Join([]string{
		`Security ID,Issuer Name,Coupon Rate,Maturity Date,Credit-Rating,LTP,Traded Qty`,
		`INE9,"Acme, ""Holdings"" Ltd",7.5%,2030-06-30,aa+,"1,012.50",2500`,
	}, "\r\n")
	bonds, err := newTestParser().Parse(context.Background(), "a.csv", strings.NewReader(csv), nil)
	require.NoError(t, err)
	require.Len(t, bonds, 1)

	b := bonds[0]
	assert.Equal(t, `Acme, "Holdings" Ltd`, b.Issuer)
	assert.Equal(t, 7.5, b.Coupon)
	assert.Equal(t, time.Date(2030, 6, 30, 0, 0, 0, 0, time.UTC), b.MaturityDate)
	assert.Equal(t, domain.RatingAAPlus, b.CreditRating)
	assert.Equal(t, 1012.5, b.CurrentPrice)
	assert.Equal(t, 2500.0, b.Volume)
}

func TestParse_Rejections(t *testing.T) {
	p := newTestParser()
	ctx := context.Background()

	tests := []struct {
		name     string
		filename string
		body     string
		want     error
	}{
		{"wrong extension", "bonds.xlsx", "isin\nX\n", domain.ErrUnsupportedFile},
		{"header only", "b.csv", "isin,price\n", domain.ErrNoDataRows},
		{"empty", "b.csv", "", domain.ErrNoDataRows},
		{"no isin column", "b.csv", "issuer,price\nAcme,100\n", domain.ErrNoISINColumn},
		{"all isins blank", "b.csv", "isin,price\n ,100\n,99\n", domain.ErrNoValidBonds},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bonds, err := p.Parse(ctx, tt.filename, strings.NewReader(tt.body), nil)
			require.ErrorIs(t, err, tt.want)
			assert.NotEmpty(t, err.Error())
			assert.Nil(t, bonds)
		})
	}
}

func TestParse_SkipsBlankISINRows(t *testing.T) {
	csv := "isin,price\n,100\nINE1,101\n  ,102\n"
	bonds, err := newTestParser().Parse(context.Background(), "b.csv", strings.NewReader(csv), nil)
	require.NoError(t, err)
	require.Len(t, bonds, 1)
	assert.Equal(t, "INE1", bonds[0].ID)
}

func TestParse_DuplicateISINKeepsLatest(t *testing.T) {
	csv := "isin,price\nINE1,100\nINE2,50\nINE1,110\n"
	bonds, err := newTestParser().Parse(context.Background(), "b.csv", strings.NewReader(csv), nil)
	require.NoError(t, err)
	require.Len(t, bonds, 2)
	assert.Equal(t, "INE1", bonds[0].ID)
	assert.Equal(t, 110.0, bonds[0].CurrentPrice)
}

func TestParse_ProgressPerChunk(t *testing.T) {
	var b strings.Builder
	b.WriteString("isin\n")
	for i := 0; i < 5; i++ {
		fmt.Fprintf(&b, "INE%03d\n", i)
	}

	var reports []float64
	_, err := newTestParser(WithChunkSize(2)).Parse(context.Background(), "b.csv", strings.NewReader(b.String()), func(f float64) {
		reports = append(reports, f)
	})
	require.NoError(t, err)
	assert.Equal(t, []float64{0.4, 0.8, 1.0}, reports)
}

func TestParse_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestParser().Parse(ctx, "b.csv", strings.NewReader("isin\nINE1\n"), nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestParse_Properties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	isinGen := gen.RegexMatch(`^[A-Z]{2}[A-Z0-9]{9}[0-9]$`)
	rowsGen := gen.SliceOfN(8, gopter.CombineGens(isinGen, gen.Float64Range(50, 150)))

	build := func(rows [][]any) string {
		var b strings.Builder
		b.WriteString("ISIN,Issuer,Price\n")
		for _, vals := range rows {
			fmt.Fprintf(&b, "%s,Issuer %s,%.2f\n", vals[0], vals[0], vals[1])
		}
		return b.String()
	}

	properties.Property("at least one bond for a file with an ISIN row", prop.ForAll(
		func(rows [][]any) bool {
			if len(rows) == 0 {
				return true
			}
			bonds, err := newTestParser().Parse(context.Background(), "p.csv", strings.NewReader(build(rows)), nil)
			return err == nil && len(bonds) >= 1
		},
		rowsGen,
	))

	properties.Property("parsing twice yields equal lists", prop.ForAll(
		func(rows [][]any) bool {
			if len(rows) == 0 {
				return true
			}
			input := build(rows)
			a, errA := newTestParser().Parse(context.Background(), "p.csv", strings.NewReader(input), nil)
			b, errB := newTestParser().Parse(context.Background(), "p.csv", strings.NewReader(input), nil)
			if errA != nil || errB != nil || len(a) != len(b) {
				return false
			}
			sort.Slice(a, func(i, j int) bool { return a[i].ISIN < a[j].ISIN })
			sort.Slice(b, func(i, j int) bool { return b[i].ISIN < b[j].ISIN })
			for i := range a {
				if a[i] != b[i] {
					return false
				}
			}
			return true
		},
		rowsGen,
	))

	properties.TestingRun(t)
}
