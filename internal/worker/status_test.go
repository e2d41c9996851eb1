package worker_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/pvelikov/session-balancer/internal/worker"
)

var _ = Describe("Worker", func() {
	It("defaults the host to localhost", func() {
		w := worker.New("", 8081)
		Expect(w.Addr()).To(Equal("localhost:8081"))
	})

	It("builds a dialable destination address", func() {
		d := worker.Destination{Host: "localhost", Port: 8082}
		Expect(d.Addr()).To(Equal("localhost:8082"))
	})
})

var _ = Describe("Status", func() {
	It("combines all three load figures into the business score", func() {
		st := worker.Status{ClientCount: 1, HTTPRPM: 2, IORPM: 3}
		Expect(st.Business()).To(Equal(6))
	})
})

var _ = Describe("StatusCache", func() {
	var cache *worker.StatusCache

	BeforeEach(func() {
		cache = worker.NewStatusCache()
	})

	It("treats unpolled workers as unknown", func() {
		_, ok := cache.Get(8081)
		Expect(ok).To(BeFalse())
	})

	It("overwrites a slot wholesale", func() {
		cache.Put(8081, worker.Status{ClientCount: 5})
		cache.Put(8081, worker.Status{HTTPRPM: 2})

		st, ok := cache.Get(8081)
		Expect(ok).To(BeTrue())
		Expect(st.ClientCount).To(Equal(0))
		Expect(st.HTTPRPM).To(Equal(2))
	})

	It("forgets a slot on poll failure", func() {
		cache.Put(8081, worker.Status{ClientCount: 5})
		cache.Forget(8081)

		_, ok := cache.Get(8081)
		Expect(ok).To(BeFalse())
	})

	It("drops every slot on reset", func() {
		cache.Put(8081, worker.Status{})
		cache.Put(8082, worker.Status{})
		cache.Reset()

		Expect(cache.Snapshot()).To(BeEmpty())
	})

	It("returns an independent snapshot", func() {
		cache.Put(8081, worker.Status{ClientCount: 1})

		snap := cache.Snapshot()
		snap[8081] = worker.Status{ClientCount: 99}

		st, _ := cache.Get(8081)
		Expect(st.ClientCount).To(Equal(1))
	})
})
