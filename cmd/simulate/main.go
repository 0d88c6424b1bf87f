package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-appointment-lifecycle/internal/logging"
	"github.com/hackgods/clinic-appointment-lifecycle/internal/seed"
	"github.com/hackgods/clinic-appointment-lifecycle/internal/slotdate"
)

// The simulator drives a running api-server with seeded accounts. Patients
// race for a small set of slots while doctors complete and patients cancel
// the winners, then every doctor's day is checked for double bookings.

type SimConfig struct {
	APIBaseURL    string
	Duration      time.Duration
	Workers       int
	Doctors       int
	Patients      int
	Password      string
	SlotDate      string
	BookingRatio  float64
	CancelRatio   float64
	CompleteRatio float64
	ReadRatio     float64
}

type session struct {
	token string
	id    uuid.UUID
}

type booked struct {
	id      uuid.UUID
	patient int
	doctor  int
}

type DataPool struct {
	Doctors  []session
	Patients []session

	mu           sync.RWMutex
	appointments []booked
}

func (dp *DataPool) AddAppointment(b booked) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, b)
}

func (dp *DataPool) RandomAppointment(rng *rand.Rand) (booked, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return booked{}, false
	}
	return dp.appointments[rng.Intn(len(dp.appointments))], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, status int, err error) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case err == nil && status >= 200 && status < 300:
		atomic.AddInt64(&om.Success, 1)
	case err == nil && status == http.StatusConflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, p50, p95, max time.Duration) {
	om.mu.Lock()
	latencies := append([]time.Duration(nil), om.Latencies...)
	om.mu.Unlock()

	if len(latencies) == 0 {
		return 0, 0, 0, 0
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	pick := func(pct int) time.Duration {
		idx := len(latencies) * pct / 100
		if idx >= len(latencies) {
			idx = len(latencies) - 1
		}
		return latencies[idx]
	}
	return sum / time.Duration(len(latencies)), pick(50), pick(95), latencies[len(latencies)-1]
}

type Metrics struct {
	Booking  OperationMetrics
	Cancel   OperationMetrics
	Complete OperationMetrics
	List     OperationMetrics
	Slots    OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
	times   []string
	log     zerolog.Logger
}

func main() {
	_ = godotenv.Load()
	logger := logging.New(getEnv("APP_ENV", "development"))

	cfg := loadConfig()
	if err := validateConfig(&cfg); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	sim := &Simulator{
		config: cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		times:  seed.SlotTimes()[:4],
		log:    logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	pool, err := sim.login(ctx)
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("login failed, run clinicctl seed first")
	}
	sim.pool = pool
	logger.Info().Int("doctors", len(pool.Doctors)).Int("patients", len(pool.Patients)).Str("slot_date", cfg.SlotDate).Msg("sessions ready")

	sim.Run()

	doubles, err := sim.checkDoubleBookings(context.Background())
	if err != nil {
		logger.Error().Err(err).Msg("double booking check failed")
	}
	sim.PrintReport(doubles)
	if doubles > 0 {
		os.Exit(1)
	}
}

func loadConfig() SimConfig {
	cfg := SimConfig{
		APIBaseURL:    strings.TrimRight(getEnv("SIM_API_BASE_URL", "http://localhost:8080"), "/"),
		Duration:      getDuration("SIM_DURATION", 30*time.Second),
		Workers:       getInt("SIM_WORKERS", 10),
		Doctors:       getInt("SIM_DOCTORS", 3),
		Patients:      getInt("SIM_PATIENTS", 50),
		Password:      getEnv("SIM_PASSWORD", seed.DefaultOptions().Password),
		SlotDate:      getEnv("SIM_SLOT_DATE", slotdate.FromTime(time.Now().AddDate(0, 0, 30))),
		BookingRatio:  getFloat("SIM_BOOKING_RATIO", 0.5),
		CancelRatio:   getFloat("SIM_CANCEL_RATIO", 0.15),
		CompleteRatio: getFloat("SIM_COMPLETE_RATIO", 0.1),
		ReadRatio:     getFloat("SIM_READ_RATIO", 0.25),
	}

	total := cfg.BookingRatio + cfg.CancelRatio + cfg.CompleteRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.CancelRatio /= total
		cfg.CompleteRatio /= total
		cfg.ReadRatio /= total
	}
	return cfg
}

func validateConfig(cfg *SimConfig) error {
	if cfg.Workers <= 0 {
		return errors.New("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return errors.New("SIM_DURATION must be > 0")
	}
	if cfg.Doctors <= 0 || cfg.Patients <= 0 {
		return errors.New("SIM_DOCTORS and SIM_PATIENTS must be > 0")
	}
	// Stored slot dates are canonical; compare against the same spelling.
	date, err := slotdate.Normalize(cfg.SlotDate)
	if err != nil {
		return err
	}
	cfg.SlotDate = date
	return nil
}

func (s *Simulator) login(ctx context.Context) (*DataPool, error) {
	pool := &DataPool{}
	for i := 0; i < s.config.Doctors; i++ {
		sess, err := s.loginAs(ctx, seed.DoctorEmail(i))
		if err != nil {
			return nil, err
		}
		pool.Doctors = append(pool.Doctors, sess)
	}
	for i := 0; i < s.config.Patients; i++ {
		sess, err := s.loginAs(ctx, seed.PatientEmail(i))
		if err != nil {
			return nil, err
		}
		pool.Patients = append(pool.Patients, sess)
	}
	return pool, nil
}

func (s *Simulator) loginAs(ctx context.Context, email string) (session, error) {
	var resp struct {
		Token string    `json:"token"`
		ID    uuid.UUID `json:"id"`
	}
	status, err := s.call(ctx, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    email,
		"password": s.config.Password,
	}, &resp)
	if err != nil {
		return session{}, err
	}
	if status != http.StatusOK {
		return session{}, fmt.Errorf("login %s: status %d", email, status)
	}
	return session{token: resp.Token, id: resp.ID}, nil
}

// call sends a JSON request and decodes a 2xx body into out when given.
func (s *Simulator) call(ctx context.Context, method, path, token string, body, out any) (int, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return 0, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, &buf)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, err
		}
	}
	return resp.StatusCode, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.log.Info().Dur("duration", s.config.Duration).Int("workers", s.config.Workers).Msg("starting simulation")

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}
	wg.Wait()

	s.log.Info().Msg("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for ctx.Err() == nil {
		r := rng.Float64()
		switch {
		case r < s.config.BookingRatio:
			s.doBooking(ctx, rng)
		case r < s.config.BookingRatio+s.config.CancelRatio:
			s.doCancel(ctx, rng)
		case r < s.config.BookingRatio+s.config.CancelRatio+s.config.CompleteRatio:
			s.doComplete(ctx, rng)
		default:
			if rng.Intn(2) == 0 {
				s.doList(ctx, rng)
			} else {
				s.doSlots(ctx, rng)
			}
		}
	}
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	pi := rng.Intn(len(s.pool.Patients))
	di := rng.Intn(len(s.pool.Doctors))

	var resp struct {
		ID uuid.UUID `json:"id"`
	}
	start := time.Now()
	status, err := s.call(ctx, http.MethodPost, "/api/patient/appointments", s.pool.Patients[pi].token, map[string]string{
		"doctor_id": s.pool.Doctors[di].id.String(),
		"slot_date": s.config.SlotDate,
		"slot_time": s.times[rng.Intn(len(s.times))],
	}, &resp)
	if ctx.Err() != nil {
		return
	}
	s.metrics.Booking.Record(time.Since(start), status, err)

	if err == nil && status == http.StatusCreated {
		s.pool.AddAppointment(booked{id: resp.ID, patient: pi, doctor: di})
	}
}

func (s *Simulator) doCancel(ctx context.Context, rng *rand.Rand) {
	b, ok := s.pool.RandomAppointment(rng)
	if !ok {
		return
	}
	start := time.Now()
	status, err := s.call(ctx, http.MethodPost, "/api/patient/appointments/"+b.id.String()+"/cancel", s.pool.Patients[b.patient].token, nil, nil)
	if ctx.Err() != nil {
		return
	}
	s.metrics.Cancel.Record(time.Since(start), status, err)
}

func (s *Simulator) doComplete(ctx context.Context, rng *rand.Rand) {
	b, ok := s.pool.RandomAppointment(rng)
	if !ok {
		return
	}
	start := time.Now()
	status, err := s.call(ctx, http.MethodPost, "/api/doctor/appointments/"+b.id.String()+"/complete", s.pool.Doctors[b.doctor].token, nil, nil)
	if ctx.Err() != nil {
		return
	}
	s.metrics.Complete.Record(time.Since(start), status, err)
}

func (s *Simulator) doList(ctx context.Context, rng *rand.Rand) {
	p := s.pool.Patients[rng.Intn(len(s.pool.Patients))]
	start := time.Now()
	status, err := s.call(ctx, http.MethodGet, "/api/patient/appointments?page=1", p.token, nil, nil)
	if ctx.Err() != nil {
		return
	}
	s.metrics.List.Record(time.Since(start), status, err)
}

func (s *Simulator) doSlots(ctx context.Context, rng *rand.Rand) {
	d := s.pool.Doctors[rng.Intn(len(s.pool.Doctors))]
	start := time.Now()
	status, err := s.call(ctx, http.MethodGet, "/api/doctors/"+d.id.String()+"/slots?date="+s.config.SlotDate, "", nil, nil)
	if ctx.Err() != nil {
		return
	}
	s.metrics.Slots.Record(time.Since(start), status, err)
}

// checkDoubleBookings pages through every doctor's stored appointments and
// counts live ones sharing a slot time on the simulated date.
func (s *Simulator) checkDoubleBookings(ctx context.Context) (int, error) {
	doubles := 0
	for _, d := range s.pool.Doctors {
		held := make(map[string]int)
		for page, totalPages := 1, 1; page <= totalPages; page++ {
			var resp struct {
				Items []struct {
					SlotDate string `json:"slot_date"`
					SlotTime string `json:"slot_time"`
					Status   string `json:"status"`
				} `json:"items"`
				TotalPages int `json:"total_pages"`
			}
			path := "/api/doctor/appointments?page=" + strconv.Itoa(page)
			status, err := s.call(ctx, http.MethodGet, path, d.token, nil, &resp)
			if err != nil {
				return doubles, err
			}
			if status != http.StatusOK {
				return doubles, fmt.Errorf("list appointments of %s: status %d", d.id, status)
			}
			totalPages = resp.TotalPages
			for _, it := range resp.Items {
				if it.SlotDate == s.config.SlotDate && it.Status != "cancelled" {
					held[it.SlotTime]++
				}
			}
		}
		for _, n := range held {
			if n > 1 {
				doubles += n - 1
			}
		}
	}
	return doubles, nil
}

func (s *Simulator) PrintReport(doubles int) {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Printf("Slot date: %s (%d times x %d doctors)\n", s.config.SlotDate, len(s.times), len(s.pool.Doctors))
	fmt.Println()

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Cancel", &s.metrics.Cancel)
	printOperationReport("Complete", &s.metrics.Complete)
	printOperationReport("List (patient)", &s.metrics.List)
	printOperationReport("Booked slots", &s.metrics.Slots)

	fmt.Printf("Double bookings: %d\n", doubles)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)
	avg, p50, p95, max := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s p50=%s p95=%s max=%s\n",
		avg.Round(time.Millisecond), p50.Round(time.Millisecond), p95.Round(time.Millisecond), max.Round(time.Millisecond))
	fmt.Println()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
