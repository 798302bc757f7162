package guard_test

import (
	"context"
	"time"

	"github.com/frahmantamala/assistant-guard/internal/guard"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Lockout", func() {
	var (
		ctx     context.Context
		clk     *clock
		lockout *guard.Lockout
	)

	BeforeEach(func() {
		ctx = context.Background()
		clk = newClock()
		lockout = guard.NewLockout(5, 300*time.Second).WithClock(clk.Now)
	})

	fail := func(n int) {
		for i := 0; i < n; i++ {
			lockout.RecordFailure(ctx, "10.0.0.1")
		}
	}

	It("locks after the fifth failure", func() {
		fail(4)
		locked, _ := lockout.Check(ctx, "10.0.0.1")
		Expect(locked).To(BeFalse())

		fail(1)
		locked, remaining := lockout.Check(ctx, "10.0.0.1")
		Expect(locked).To(BeTrue())
		Expect(remaining).To(Equal(300 * time.Second))
		Expect(lockout.Locked()).To(Equal(1))
	})

	It("clears once the duration has passed since the last failure", func() {
		fail(5)
		clk.Advance(299 * time.Second)
		locked, remaining := lockout.Check(ctx, "10.0.0.1")
		Expect(locked).To(BeTrue())
		Expect(remaining).To(Equal(time.Second))

		clk.Advance(time.Second)
		locked, _ = lockout.Check(ctx, "10.0.0.1")
		Expect(locked).To(BeFalse())
		Expect(lockout.Failures("10.0.0.1")).To(BeZero())
	})

	It("extends the lockout when failures continue", func() {
		fail(5)
		clk.Advance(200 * time.Second)
		fail(1)
		clk.Advance(200 * time.Second)

		locked, remaining := lockout.Check(ctx, "10.0.0.1")
		Expect(locked).To(BeTrue())
		Expect(remaining).To(Equal(100 * time.Second))
		Expect(lockout.Failures("10.0.0.1")).To(Equal(6))
	})

	It("resets on success", func() {
		fail(4)
		lockout.RecordSuccess(ctx, "10.0.0.1")
		fail(1)
		locked, _ := lockout.Check(ctx, "10.0.0.1")
		Expect(locked).To(BeFalse())
		Expect(lockout.Failures("10.0.0.1")).To(Equal(1))
	})

	It("starts counting again after stale failures expire", func() {
		fail(4)
		clk.Advance(301 * time.Second)
		fail(1)
		Expect(lockout.Failures("10.0.0.1")).To(Equal(1))
	})
})
