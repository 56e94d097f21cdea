package mission

import (
	"context"
	"fmt"

	"bytemomo/narwhal/internal/domain"
	"bytemomo/narwhal/internal/flag"

	"github.com/sirupsen/logrus"
)

const (
	GateOff     = "off"
	GatePattern = "pattern"
	GateSubmit  = "submit"
)

// Gate verifies end verdicts. In pattern mode the insight must contain a
// flag{...} value; submit mode additionally requires the challenge API to
// accept it.
type Gate struct {
	Mode string
	API  domain.ChallengeAPI
	Log  *logrus.Entry
}

func (g *Gate) Verify(ctx context.Context, state *domain.MissionState, insight string) Verdict {
	if g.Mode == GateOff {
		return Verdict{Accepted: true, Flag: insight}
	}

	candidate, ok := flag.Strict(insight)
	if !ok {
		return Verdict{Reason: "no flag-shaped value in insight"}
	}
	if g.Mode != GateSubmit {
		return Verdict{Accepted: true, Flag: candidate}
	}

	if g.API == nil {
		return Verdict{Reason: "no challenge API to submit to"}
	}
	res, err := g.API.SubmitAnswer(ctx, state.Code, candidate)
	if err != nil {
		return Verdict{Reason: fmt.Sprintf("submission failed: %v", err)}
	}

	l := g.logger().WithFields(logrus.Fields{
		"mission": state.ID,
		"code":    state.Code,
		"correct": res.Correct,
		"points":  res.EarnedPoints,
	})
	if !res.Accepted() {
		l.Warn("Flag rejected by challenge API")
		return Verdict{Reason: fmt.Sprintf("challenge API rejected %s", candidate)}
	}
	l.Info("Flag accepted by challenge API")
	return Verdict{Accepted: true, Flag: candidate}
}

func (g *Gate) logger() *logrus.Entry {
	if g.Log == nil {
		return logrus.NewEntry(logrus.StandardLogger())
	}
	return g.Log
}
