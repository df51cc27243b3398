package mongocheck

import "sync"

// Status is the result of a connectivity service check.
type Status int

const (
	// StatusOK reports the endpoint as reachable.
	StatusOK Status = iota
	// StatusCritical reports the endpoint as unreachable.
	StatusCritical
)

func (s Status) String() string {
	if s == StatusOK {
		return "OK"
	}
	return "CRITICAL"
}

// Sink is the submission backend boundary. The check is a pure
// transformation from server documents to these calls; what happens to
// a submission afterwards is not its concern.
type Sink interface {
	Metric(name string, value float64, kind Kind, tags []string)
	ServiceCheck(name string, status Status, tags []string, message string)
	Event(event Event)
	DiscoveredVersion(version string)
}

// MetricRecord is one captured Metric call.
type MetricRecord struct {
	Name  string
	Value float64
	Kind  Kind
	Tags  []string
}

// ServiceCheckRecord is one captured ServiceCheck call.
type ServiceCheckRecord struct {
	Name    string
	Status  Status
	Tags    []string
	Message string
}

// RecordingSink captures every submission in memory. It backs the CLI
// printer and the package tests.
type RecordingSink struct {
	mu            sync.Mutex
	Metrics       []MetricRecord
	ServiceChecks []ServiceCheckRecord
	Events        []Event
	Versions      []string
}

// NewRecordingSink constructs an empty RecordingSink.
func NewRecordingSink() *RecordingSink { return &RecordingSink{} }

func (s *RecordingSink) Metric(name string, value float64, kind Kind, tags []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Metrics = append(s.Metrics, MetricRecord{Name: name, Value: value, Kind: kind, Tags: append([]string{}, tags...)})
}

func (s *RecordingSink) ServiceCheck(name string, status Status, tags []string, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ServiceChecks = append(s.ServiceChecks, ServiceCheckRecord{Name: name, Status: status, Tags: append([]string{}, tags...), Message: message})
}

func (s *RecordingSink) Event(event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Events = append(s.Events, event)
}

func (s *RecordingSink) DiscoveredVersion(version string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Versions = append(s.Versions, version)
}

// MetricNamed returns the first captured metric with the given name.
func (s *RecordingSink) MetricNamed(name string) (MetricRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.Metrics {
		if m.Name == name {
			return m, true
		}
	}
	return MetricRecord{}, false
}
