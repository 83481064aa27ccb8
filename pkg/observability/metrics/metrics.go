package metrics

import (
	"fmt"
	"net/http"
	"sync/atomic"
)

var (
	listRequests       atomic.Int64
	upstreamErrors     atomic.Int64
	cacheHits          atomic.Int64
	cacheMisses        atomic.Int64
	patientsCreated    atomic.Int64
	patientsDeleted    atomic.Int64
	patientsCopied     atomic.Int64
	processRateLimited atomic.Int64
)

func ListRequest() { listRequests.Add(1) }
func UpstreamError() { upstreamErrors.Add(1) }
func CacheHit() { cacheHits.Add(1) }
func CacheMiss() { cacheMisses.Add(1) }
func PatientCreated() { patientsCreated.Add(1) }
func PatientDeleted() { patientsDeleted.Add(1) }
func PatientCopied() { patientsCopied.Add(1) }
func ProcessRateLimited() { processRateLimited.Add(1) }

func WritePrometheus(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	fmt.Fprintf(w, "# HELP patientsync_list_requests_total Number of patient list requests served.\n")
	fmt.Fprintf(w, "# TYPE patientsync_list_requests_total counter\n")
	fmt.Fprintf(w, "patientsync_list_requests_total %d\n", listRequests.Load())

	fmt.Fprintf(w, "# HELP patientsync_upstream_errors_total Number of failed calls to the third-party patient store.\n")
	fmt.Fprintf(w, "# TYPE patientsync_upstream_errors_total counter\n")
	fmt.Fprintf(w, "patientsync_upstream_errors_total %d\n", upstreamErrors.Load())

	fmt.Fprintf(w, "# HELP patientsync_cache_hits_total Number of cache hits across list, detail and process scopes.\n")
	fmt.Fprintf(w, "# TYPE patientsync_cache_hits_total counter\n")
	fmt.Fprintf(w, "patientsync_cache_hits_total %d\n", cacheHits.Load())

	fmt.Fprintf(w, "# HELP patientsync_cache_misses_total Number of cache misses across list, detail and process scopes.\n")
	fmt.Fprintf(w, "# TYPE patientsync_cache_misses_total counter\n")
	fmt.Fprintf(w, "patientsync_cache_misses_total %d\n", cacheMisses.Load())

	fmt.Fprintf(w, "# HELP patientsync_patients_created_total Number of patients created locally.\n")
	fmt.Fprintf(w, "# TYPE patientsync_patients_created_total counter\n")
	fmt.Fprintf(w, "patientsync_patients_created_total %d\n", patientsCreated.Load())

	fmt.Fprintf(w, "# HELP patientsync_patients_deleted_total Number of local patients deleted.\n")
	fmt.Fprintf(w, "# TYPE patientsync_patients_deleted_total counter\n")
	fmt.Fprintf(w, "patientsync_patients_deleted_total %d\n", patientsDeleted.Load())

	fmt.Fprintf(w, "# HELP patientsync_patients_copied_total Number of third-party patients copied into the local store.\n")
	fmt.Fprintf(w, "# TYPE patientsync_patients_copied_total counter\n")
	fmt.Fprintf(w, "patientsync_patients_copied_total %d\n", patientsCopied.Load())

	fmt.Fprintf(w, "# HELP patientsync_process_rate_limited_total Number of process requests rejected by the rate limiter.\n")
	fmt.Fprintf(w, "# TYPE patientsync_process_rate_limited_total counter\n")
	fmt.Fprintf(w, "patientsync_process_rate_limited_total %d\n", processRateLimited.Load())
}
