package parpipe_test

import (
	"time"

	"github.com/juju/clock/testclock"
	"github.com/parpipe/parpipe"
	"golang.org/x/xerrors"
	gc "gopkg.in/check.v1"
)

var _ = gc.Suite(new(StageTestSuite))

type StageTestSuite struct{}

func (s *StageTestSuite) TestSetupValidation(c *gc.C) {
	c.Assert(func() { parpipe.NewStage("", passthroughTask) }, gc.PanicMatches, "NewStage: name must not be empty")
	c.Assert(func() { parpipe.NewStage("stage", nil) }, gc.PanicMatches, "NewStage: fn must not be nil")

	stage := parpipe.NewStage("stage", passthroughTask)
	c.Assert(func() { stage.Setup(0, 1) }, gc.PanicMatches, "Setup: workers must be greater than zero")
	c.Assert(func() { stage.Setup(1, -1) }, gc.PanicMatches, "Setup: qsize must be greater than or equal to zero")
}

func (s *StageTestSuite) TestDescriptorAccessors(c *gc.C) {
	stage := parpipe.NewStage("fetch", passthroughTask)
	c.Assert(stage.Workers(), gc.Equals, 1)
	c.Assert(stage.QueueSize(), gc.Equals, 0)
	c.Assert(stage.String(), gc.Equals, "fetch(x1)")

	stage.Setup(4, 32)
	c.Assert(stage.Workers(), gc.Equals, 4)
	c.Assert(stage.QueueSize(), gc.Equals, 32)
	c.Assert(stage.String(), gc.Equals, "fetch(x4)")
}

func (s *StageTestSuite) TestMapStage(c *gc.C) {
	mapper := parpipe.NewMapStage("add5", func(item interface{}) (interface{}, error) {
		return item.(int) + 5, nil
	}, false).Setup(4, 0)
	consume := parpipe.NewStage("sum", sumTask)

	got, err := parpipe.Items(intValues(1000)...).Then(mapper).Then(consume).Execute()
	c.Assert(err, gc.IsNil)
	c.Assert(got, gc.Equals, 504500)
}

func (s *StageTestSuite) TestMapStageBijection(c *gc.C) {
	double := parpipe.NewMapStage("double", func(item interface{}) (interface{}, error) {
		return item.(int) * 2, nil
	}, false).Setup(2, 8)

	res := collectInts(c, parpipe.Items(intValues(100)...).Then(double))
	c.Assert(res, gc.HasLen, 100)

	seen := make(map[int]int)
	for _, v := range res {
		seen[v]++
	}
	for i := 0; i < 100; i++ {
		c.Assert(seen[i*2], gc.Equals, 1, gc.Commentf("missing or duplicated output for input %d", i))
	}
}

func (s *StageTestSuite) TestMapStageErrors(c *gc.C) {
	doubleSixOnly := func(item interface{}) (interface{}, error) {
		if item.(int) != 6 {
			return nil, xerrors.New("failure")
		}
		return item.(int) * 2, nil
	}
	consume := parpipe.NewStage("sum", sumTask)

	// With error filtering the failing items are simply dropped.
	filtered := parpipe.NewMapStage("double-six", doubleSixOnly, true).Setup(4, 0)
	got, err := parpipe.Items(intValues(1000)...).Then(filtered).Then(consume).Execute()
	c.Assert(err, gc.IsNil)
	c.Assert(got, gc.Equals, 12)

	// Without it the first failing item fails the stage.
	failing := parpipe.NewMapStage("double-six", doubleSixOnly, false).Setup(4, 0)
	_, err = parpipe.Items(intValues(1000)...).Then(failing).Then(consume).Execute()
	c.Assert(err, gc.ErrorMatches, ".*failure.*")
}

func (s *StageTestSuite) TestMapStageAsProducer(c *gc.C) {
	mapper := parpipe.NewMapStage("add5", func(item interface{}) (interface{}, error) {
		return item.(int) + 5, nil
	}, false)

	_, err := mapper.Execute()
	c.Assert(err, gc.ErrorMatches, ".*a map stage cannot be the first stage of a pipeline.*")
}

func (s *StageTestSuite) TestThrottledStage(c *gc.C) {
	clk := testclock.NewClock(time.Now())
	throttle := parpipe.NewThrottledStage("throttle", clk, time.Second)

	type runResult struct {
		items []int
		err   error
	}
	resCh := make(chan runResult, 1)
	go func() {
		it := parpipe.Items(1, 2, 3).Then(throttle).Results()
		var items []int
		for it.Next() {
			items = append(items, it.Item().(int))
		}
		resCh <- runResult{items: items, err: it.Error()}
	}()

	// The worker waits out the throttle interval once per forwarded item.
	for i := 0; i < 3; i++ {
		c.Assert(clk.WaitAdvance(time.Second, 10*time.Second, 1), gc.IsNil)
	}

	select {
	case res := <-resCh:
		c.Assert(res.err, gc.IsNil)
		c.Assert(res.items, gc.DeepEquals, []int{1, 2, 3})
	case <-time.After(10 * time.Second):
		c.Fatal("timed out waiting for pipeline to complete")
	}
}

func (s *StageTestSuite) TestThrottledStageValidation(c *gc.C) {
	c.Assert(func() { parpipe.NewThrottledStage("throttle", nil, 0) },
		gc.PanicMatches, "NewThrottledStage: interval must be greater than zero")
}
