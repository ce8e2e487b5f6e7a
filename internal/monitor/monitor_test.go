package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/sensorless/internal/config"
	"github.com/san-kum/sensorless/internal/experiment"
	"github.com/san-kum/sensorless/internal/storage"
)

func get(h http.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

var _ = Describe("Monitor", func() {
	var (
		cfg *config.Config
		exp *experiment.Experiment
		m   *Monitor
		h   http.Handler
	)

	BeforeEach(func() {
		cfg = config.DefaultConfig()
		cfg.Name = "nominal"
		cfg.Duration = 0.05

		exp = experiment.New(cfg)
		Expect(exp.Setup()).To(Succeed())

		m = New(exp.Simulator(), experiment.SimConfig(cfg), cfg.Name)
		h = m.Handler()
	})

	It("should fall back to a random port below 1000", func() {
		Expect(m.WithPortNumber(80).portNumber).To(Equal(0))
		Expect(m.WithPortNumber(8080).portNumber).To(Equal(8080))
	})

	It("should run to the end of the duration", func() {
		result, err := m.Run(context.Background())

		Expect(err).NotTo(HaveOccurred())
		Expect(result.Ticks).To(Equal(400))
		Expect(result.Samples).To(HaveLen(400))
		Expect(result.Metrics).To(HaveKey("position_rms"))

		st := m.Status()
		Expect(st.Done).To(BeTrue())
		Expect(st.Tick).To(Equal(400))
		Expect(st.Total).To(Equal(400))
		Expect(st.Time).To(BeNumerically("~", 0.05, 1e-9))
	})

	It("should report status and metrics as JSON", func() {
		_, err := m.Run(context.Background())
		Expect(err).NotTo(HaveOccurred())

		rec := get(h, "/api/status")
		Expect(rec.Code).To(Equal(http.StatusOK))

		var st Status
		Expect(json.Unmarshal(rec.Body.Bytes(), &st)).To(Succeed())
		Expect(st.Name).To(Equal("nominal"))
		Expect(st.Tick).To(Equal(400))

		rec = get(h, "/api/metrics")
		var values map[string]float64
		Expect(json.Unmarshal(rec.Body.Bytes(), &values)).To(Succeed())
		Expect(values).To(HaveKey("lock_ratio"))

		rec = get(h, "/api/progress")
		var bars []progressRsp
		Expect(json.Unmarshal(rec.Body.Bytes(), &bars)).To(Succeed())
		Expect(bars).To(HaveLen(1))
		Expect(bars[0].Finished).To(Equal(uint64(400)))
		Expect(bars[0].Total).To(Equal(uint64(400)))
	})

	It("should hold the run while paused", func() {
		Expect(get(h, "/api/pause").Code).To(Equal(http.StatusOK))
		Expect(m.Paused()).To(BeTrue())

		done := make(chan error, 1)
		go func() {
			_, err := m.Run(context.Background())
			done <- err
		}()

		Consistently(func() int { return m.Status().Tick }, 100*time.Millisecond, 10*time.Millisecond).Should(Equal(0))

		Expect(get(h, "/api/continue").Code).To(Equal(http.StatusOK))
		Eventually(done, 5*time.Second).Should(Receive(BeNil()))
		Expect(m.Status().Tick).To(Equal(400))
	})

	It("should stop when the context is cancelled", func() {
		m.Pause()
		ctx, cancel := context.WithCancel(context.Background())

		done := make(chan error, 1)
		go func() {
			_, err := m.Run(ctx)
			done <- err
		}()
		cancel()

		Eventually(done, 5*time.Second).Should(Receive(MatchError(context.Canceled)))
		Expect(m.Status().Error).To(Equal(context.Canceled.Error()))
	})

	It("should serialize the estimator", func() {
		_, err := m.Run(context.Background())
		Expect(err).NotTo(HaveOccurred())

		rec := get(h, "/api/estimator")
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.Len()).To(BeNumerically(">", 0))
	})

	It("should report process resources", func() {
		rec := get(h, "/api/resource")
		Expect(rec.Code).To(Equal(http.StatusOK))

		var rsp resourceRsp
		Expect(json.Unmarshal(rec.Body.Bytes(), &rsp)).To(Succeed())
		Expect(rsp.MemorySize).To(BeNumerically(">", 0))
	})

	Context("with a run store", func() {
		var st *storage.Store

		BeforeEach(func() {
			st = storage.New(GinkgoT().TempDir())
			Expect(st.Init()).To(Succeed())
		})

		It("should 404 without a store", func() {
			Expect(get(h, "/api/runs").Code).To(Equal(http.StatusNotFound))
		})

		It("should list and export stored runs", func() {
			m.WithStore(st)

			result, err := m.Run(context.Background())
			Expect(err).NotTo(HaveOccurred())
			id, err := st.Save(exp.Metadata(), result)
			Expect(err).NotTo(HaveOccurred())

			rec := get(h, "/api/runs")
			Expect(rec.Code).To(Equal(http.StatusOK))
			var runs []storage.RunMetadata
			Expect(json.Unmarshal(rec.Body.Bytes(), &runs)).To(Succeed())
			Expect(runs).To(HaveLen(1))
			Expect(runs[0].ID).To(Equal(id))

			rec = get(h, "/api/runs/"+id)
			Expect(rec.Code).To(Equal(http.StatusOK))
			var data storage.ExportData
			Expect(json.Unmarshal(rec.Body.Bytes(), &data)).To(Succeed())
			Expect(data.Samples).To(HaveLen(400))

			Expect(get(h, "/api/runs/missing").Code).To(Equal(http.StatusNotFound))
		})
	})
})
