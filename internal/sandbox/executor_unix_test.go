//go:build unix

package sandbox

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spboyer/rmbsgrade/internal/models"
	"github.com/spboyer/rmbsgrade/internal/rating"
)

func TestExecute_ResultStandsWhenChildHoldsOutput(t *testing.T) {
	e := newExecutor(t)
	e.waitDelay = 10 * time.Second
	b := candidate(t, `
import os, time
def rate(portfolio):
    if os.fork() == 0:
        time.sleep(60)
        os._exit(0)
    return "AAA"
`, "rate", models.ShapeDict)

	start := time.Now()
	res := e.Execute(context.Background(), b, samplePortfolio(), 2*time.Second)
	took := time.Since(start)

	require.True(t, res.Succeeded(), "%+v", res)
	require.Equal(t, rating.AAA, res.Rating)
	require.Less(t, took, 6*time.Second)
}
