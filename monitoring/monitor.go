// Package monitoring serves the state of a running program over HTTP.
package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/pkg/browser"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"

	"github.com/sarchlab/wavefreq/monitoring/web"
	"github.com/sarchlab/wavefreq/subproblem"
)

// Monitor serves progress bars, process resources and the wrappers
// registered with it.
type Monitor struct {
	portNumber      int
	profileDuration time.Duration

	wrappersLock sync.Mutex
	wrappers     map[string]*subproblem.Wrapper

	progressBarsLock sync.Mutex
	progressBars     []*ProgressBar

	server   *http.Server
	listener net.Listener
}

// NewMonitor creates a new Monitor.
func NewMonitor() *Monitor {
	return &Monitor{
		profileDuration: time.Second,
		wrappers:        make(map[string]*subproblem.Wrapper),
	}
}

// WithPortNumber sets the port number of the monitor. Ports below 1000 are
// refused in favor of a random port.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber != 0 && portNumber < 1000 {
		log.Warn("monitor port not allowed, using a random port", "port", portNumber)
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// RegisterWrapper makes the wrapper visible under the name and shows the
// progress of its dispatches.
func (m *Monitor) RegisterWrapper(name string, w *subproblem.Wrapper) {
	m.wrappersLock.Lock()
	defer m.wrappersLock.Unlock()

	if _, ok := m.wrappers[name]; ok {
		panic(fmt.Sprintf("wrapper %s already registered", name))
	}

	m.wrappers[name] = w
	w.Dispatcher().AcceptHook(&progressHook{
		monitor: m,
		name:    name,
		bars:    make(map[string]*ProgressBar),
	})
}

// CreateProgressBar creates a new progress bar.
func (m *Monitor) CreateProgressBar(name string, total uint64) *ProgressBar {
	bar := newProgressBar(name, total)

	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	m.progressBars = append(m.progressBars, bar)

	return bar
}

// CompleteProgressBar stops showing the bar.
func (m *Monitor) CompleteProgressBar(pb *ProgressBar) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	bars := make([]*ProgressBar, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		if b != pb {
			bars = append(bars, b)
		}
	}

	m.progressBars = bars
}

// Router returns the routes of the monitor.
func (m *Monitor) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/api/progress", m.listProgressBars)
	r.HandleFunc("/api/resource", m.listResources)
	r.HandleFunc("/api/profile", m.collectProfile)
	r.HandleFunc("/api/wrappers", m.listWrappers)
	r.HandleFunc("/api/wrapper/{name}", m.wrapperDetails)
	r.HandleFunc("/api/wrapper/{name}/subproblems", m.listSubproblems)
	r.HandleFunc("/api/field/{json}", m.fieldValue)
	r.PathPrefix("/").Handler(http.FileServer(web.GetAssets()))

	return r
}

// StartServer serves the monitor in the background and returns its URL.
func (m *Monitor) StartServer() (string, error) {
	listener, err := net.Listen("tcp", fmt.Sprintf("localhost:%d", m.portNumber))
	if err != nil {
		return "", fmt.Errorf("monitoring: listen: %w", err)
	}

	m.listener = listener
	m.server = &http.Server{
		Handler:           m.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	url := fmt.Sprintf("http://localhost:%d", listener.Addr().(*net.TCPAddr).Port)
	log.Info("monitoring", "url", url)

	go func() {
		err := m.server.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("monitor server stopped", "err", err)
		}
	}()

	return url, nil
}

// OpenInBrowser opens the monitor page.
func OpenInBrowser(url string) error {
	browser.Stdout = os.Stderr

	return browser.OpenURL(url)
}

// Shutdown stops the server.
func (m *Monitor) Shutdown(ctx context.Context) error {
	if m.server == nil {
		return nil
	}

	return m.server.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("monitor response", "err", err)
	}
}

func httpError(w http.ResponseWriter, code int, err error) {
	http.Error(w, err.Error(), code)
}

func (m *Monitor) listProgressBars(w http.ResponseWriter, _ *http.Request) {
	m.progressBarsLock.Lock()
	bars := make([]progressSnapshot, len(m.progressBars))
	for i, b := range m.progressBars {
		bars[i] = b.snapshot()
	}
	m.progressBarsLock.Unlock()

	writeJSON(w, bars)
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		httpError(w, http.StatusInternalServerError, err)
		return
	}

	cpuPercent, err := proc.CPUPercent()
	if err != nil {
		httpError(w, http.StatusInternalServerError, err)
		return
	}

	mem, err := proc.MemoryInfo()
	if err != nil {
		httpError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, resourceRsp{CPUPercent: cpuPercent, MemorySize: mem.RSS})
}

func (m *Monitor) collectProfile(w http.ResponseWriter, _ *http.Request) {
	buf := bytes.NewBuffer(nil)

	if err := pprof.StartCPUProfile(buf); err != nil {
		httpError(w, http.StatusConflict, err)
		return
	}

	time.Sleep(m.profileDuration)
	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	if err != nil {
		httpError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, prof)
}

func (m *Monitor) listWrappers(w http.ResponseWriter, _ *http.Request) {
	m.wrappersLock.Lock()
	names := make([]string, 0, len(m.wrappers))
	for name := range m.wrappers {
		names = append(names, name)
	}
	m.wrappersLock.Unlock()

	sort.Strings(names)
	writeJSON(w, names)
}

func (m *Monitor) findWrapperOr404(w http.ResponseWriter, name string) *subproblem.Wrapper {
	m.wrappersLock.Lock()
	wrapper := m.wrappers[name]
	m.wrappersLock.Unlock()

	if wrapper == nil {
		http.Error(w, "wrapper not found", http.StatusNotFound)
	}

	return wrapper
}

// wrapperView is what the monitor shows of a wrapper.
type wrapperView struct {
	Base       configView
	Mode       string
	Scale      string
	Timeout    string
	CacheState string
}

type configView struct {
	Operator     string
	Nx, Nz       int
	Dx, Dz       float64
	XOrig, ZOrig float64
	NKy          int
	Tau          float64
	IsReg        bool
	FreeSurface  []string
	Sources      int
	Receivers    int
	GeometryMode string
	Solver       string
}

func viewOf(wrapper *subproblem.Wrapper) *wrapperView {
	d := wrapper.Dispatcher()
	base := wrapper.Base()

	var sides []string
	for i, name := range []string{"top", "right", "bottom", "left"} {
		if base.FreeSurf[i] {
			sides = append(sides, name)
		}
	}

	return &wrapperView{
		Base: configView{
			Operator:     base.Operator,
			Nx:           base.Nx,
			Nz:           base.Nz,
			Dx:           base.Dx,
			Dz:           base.Dz,
			XOrig:        base.XOrig,
			ZOrig:        base.ZOrig,
			NKy:          base.NKy,
			Tau:          base.Tau,
			IsReg:        base.IsReg,
			FreeSurface:  sides,
			Sources:      len(base.Geometry.Sources),
			Receivers:    len(base.Geometry.Receivers),
			GeometryMode: base.Geometry.Mode,
			Solver:       base.Solver,
		},
		Mode:       string(d.Mode()),
		Scale:      fmt.Sprint(d.Scale()),
		Timeout:    d.Timeout().String(),
		CacheState: wrapper.CacheState().String(),
	}
}

func (m *Monitor) wrapperDetails(w http.ResponseWriter, r *http.Request) {
	wrapper := m.findWrapperOr404(w, mux.Vars(r)["name"])
	if wrapper == nil {
		return
	}

	serializer := goseth.NewSerializer()
	serializer.SetRoot(viewOf(wrapper))
	serializer.SetMaxDepth(2)

	if err := serializer.Serialize(w); err != nil {
		log.Error("serializing wrapper", "err", err)
	}
}

type fieldReq struct {
	Wrapper   string `json:"wrapper,omitempty"`
	FieldName string `json:"field_name,omitempty"`
}

func (m *Monitor) fieldValue(w http.ResponseWriter, r *http.Request) {
	req := fieldReq{}
	if err := json.Unmarshal([]byte(mux.Vars(r)["json"]), &req); err != nil {
		httpError(w, http.StatusBadRequest, err)
		return
	}

	wrapper := m.findWrapperOr404(w, req.Wrapper)
	if wrapper == nil {
		return
	}

	serializer := goseth.NewSerializer()
	serializer.SetRoot(viewOf(wrapper))
	serializer.SetMaxDepth(1)

	if err := serializer.SetEntryPoint(strings.Split(req.FieldName, ".")); err != nil {
		httpError(w, http.StatusBadRequest, err)
		return
	}

	if err := serializer.Serialize(w); err != nil {
		log.Error("serializing field", "err", err)
	}
}

// SubproblemStatus is one entry of the subproblem listing.
type SubproblemStatus struct {
	Index          int     `json:"index"`
	FreqReal       float64 `json:"freq_real"`
	FreqImag       float64 `json:"freq_imag"`
	Factorizations int     `json:"factorizations"`
}

// listSubproblems never materializes subproblems; an empty cache lists
// nothing.
func (m *Monitor) listSubproblems(w http.ResponseWriter, r *http.Request) {
	wrapper := m.findWrapperOr404(w, mux.Vars(r)["name"])
	if wrapper == nil {
		return
	}

	status := []SubproblemStatus{}

	subs, _ := wrapper.Materialized()
	for i, d := range subs {
		status = append(status, SubproblemStatus{
			Index:          i,
			FreqReal:       real(d.Freq()),
			FreqImag:       imag(d.Freq()),
			Factorizations: d.Factorizations(),
		})
	}

	writeJSON(w, status)
}
