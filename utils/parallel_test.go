package utils

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.viam.com/test"
	gutils "go.viam.com/utils"
)

func TestRunInParallel(t *testing.T) {
	wait100ms := func(ctx context.Context) error {
		gutils.SelectContextOrWait(ctx, 100*time.Millisecond)
		return ctx.Err()
	}

	elapsed, err := RunInParallel(context.Background(), []SimpleFunc{wait100ms, wait100ms})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, elapsed, test.ShouldBeLessThan, 190*time.Millisecond)

	errFunc := func(ctx context.Context) error {
		return errors.New("bad")
	}

	elapsed, err = RunInParallel(context.Background(), []SimpleFunc{wait100ms, wait100ms, errFunc})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, elapsed, test.ShouldBeLessThan, 90*time.Millisecond)

	panicFunc := func(ctx context.Context) error {
		panic(1)
	}

	_, err = RunInParallel(context.Background(), []SimpleFunc{panicFunc})
	test.That(t, err, test.ShouldNotBeNil)
}

func TestGroupWorkParallelCoversEveryItem(t *testing.T) {
	for _, total := range []int{0, 1, 3, ParallelFactor, ParallelFactor*3 + 1, 10007} {
		seen := make([]int, total)
		var mu sync.Mutex
		groups := 0
		done := 0
		err := GroupWorkParallel(
			context.Background(),
			total,
			func(n int) { groups = n },
			func(groupNum, groupSize, from, to int) (MemberWorkFunc, GroupWorkDoneFunc) {
				return func(memberNum, workNum int) {
						seen[workNum]++
					}, func() {
						mu.Lock()
						done++
						mu.Unlock()
					}
			},
		)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, groups, test.ShouldEqual, ParallelFactor)
		test.That(t, done, test.ShouldEqual, ParallelFactor)
		for i := range seen {
			test.That(t, seen[i], test.ShouldEqual, 1)
		}
	}
}
