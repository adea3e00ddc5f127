// Package rpcserver is a small JSON-over-HTTP front end for the joader
// table: the five operations of create/delete dataset, create/delete
// job, and next are each a POST endpoint taking and returning a JSON
// body, the same role internal/webdavfs plays for the core filesystem
// but with encoding/json standing in for hand-rolled XML.
package rpcserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/anthropic-labs/joader/internal/dataset"
	"github.com/anthropic-labs/joader/internal/dataset/dummydriver"
	"github.com/anthropic-labs/joader/internal/dataset/fsdriver"
	"github.com/anthropic-labs/joader/internal/dataset/lmdbdriver"
	"github.com/anthropic-labs/joader/internal/idgen"
	"github.com/anthropic-labs/joader/internal/jobqueue"
	"github.com/anthropic-labs/joader/internal/joader"
)

var (
	// ErrNotFound is returned when a named dataset or job is unknown.
	ErrNotFound = errors.New("rpcserver: not found")
	// ErrAlreadyExists is returned when a create call collides with an
	// existing name.
	ErrAlreadyExists = errors.New("rpcserver: already exists")
	// ErrDrained is returned by Next once a job has received every
	// index it was ever going to receive and its queue is empty.
	ErrDrained = errors.New("rpcserver: job drained")
	// ErrUnknownKind is returned by CreateDataset for an unrecognized
	// dataset kind.
	ErrUnknownKind = errors.New("rpcserver: unknown dataset kind")
)

// Handler is the RPC front end: one process-wide registry of datasets
// and jobs sitting in front of a joader.Table.
type Handler struct {
	// Logger, if non-nil, is called for every request with its error
	// (nil on success), the same convention as webdavfs.Handler.Logger.
	Logger func(*http.Request, error)

	idgen *idgen.Generator
	table *joader.Table

	mu           sync.Mutex
	datasetIDs   map[string]uint32
	datasetNames map[uint32]string
	jobIDs       map[string]uint64
	jobNames     map[uint64]string
	jobDataset   map[uint64]uint32
	jobs         map[uint64]*jobqueue.Job
}

// New creates a Handler with an empty dataset/job registry.
func New(gen *idgen.Generator, table *joader.Table) *Handler {
	return &Handler{
		idgen:        gen,
		table:        table,
		datasetIDs:   make(map[string]uint32),
		datasetNames: make(map[uint32]string),
		jobIDs:       make(map[string]uint64),
		jobNames:     make(map[uint64]string),
		jobDataset:   make(map[uint64]uint32),
		jobs:         make(map[uint64]*jobqueue.Job),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var err error
	if r.Method != http.MethodPost {
		err = errors.New("rpcserver: only POST is supported")
		http.Error(w, err.Error(), http.StatusMethodNotAllowed)
	} else {
		switch r.URL.Path {
		case "/dataset.create":
			err = serve(w, r, h.createDataset)
		case "/dataset.delete":
			err = serve(w, r, h.deleteDataset)
		case "/job.create":
			err = serve(w, r, h.createJob)
		case "/job.next":
			err = serve(w, r, h.next)
		case "/job.delete":
			err = serve(w, r, h.deleteJob)
		default:
			err = errors.New("rpcserver: unknown endpoint")
			http.Error(w, err.Error(), http.StatusNotFound)
		}
	}
	if h.Logger != nil {
		h.Logger(r, err)
	}
}

// serve decodes req's JSON body into *Req, calls fn with the request's
// context, and writes its result (or error) back as JSON, mapping the
// package's sentinel errors to the status codes spec.md's error
// taxonomy calls for.
func serve[Req any, Resp any](w http.ResponseWriter, r *http.Request, fn func(context.Context, Req) (Resp, error)) error {
	var req Req
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return err
		}
	}
	resp, err := fn(r.Context(), req)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(resp)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, ErrDrained):
		return http.StatusGone
	case errors.Is(err, ErrUnknownKind):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

type createDatasetRequest struct {
	Name     string    `json:"name"`
	Location string    `json:"location"`
	Kind     string    `json:"kind"`
	Items    []string  `json:"items"`
	Weights  []float64 `json:"weights,omitempty"`
}

type createDatasetResponse struct {
	DatasetID uint32 `json:"dataset_id"`
}

// createDataset registers a new dataset under one of the three kinds
// (dummy, filesystem, lmdb), assigning it a fresh id.
func (h *Handler) createDataset(_ context.Context, req createDatasetRequest) (createDatasetResponse, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.datasetIDs[req.Name]; exists {
		return createDatasetResponse{}, fmt.Errorf("dataset %q: %w", req.Name, ErrAlreadyExists)
	}

	id := uint32(h.idgen.NextDatasetID())
	driver, err := buildDriver(id, req)
	if err != nil {
		return createDatasetResponse{}, err
	}
	if _, err := h.table.Add(driver); err != nil {
		return createDatasetResponse{}, fmt.Errorf("rpcserver: create dataset %q: %w", req.Name, err)
	}

	h.datasetIDs[req.Name] = id
	h.datasetNames[id] = req.Name
	return createDatasetResponse{DatasetID: id}, nil
}

func buildDriver(id uint32, req createDatasetRequest) (dataset.Driver, error) {
	switch req.Kind {
	case "dummy":
		return dummydriver.New(id, len(req.Items)), nil
	case "filesystem":
		pattern := "**/*"
		if len(req.Items) > 0 {
			pattern = req.Items[0]
		}
		return fsdriver.New(id, req.Location, pattern)
	case "lmdb":
		return lmdbdriver.Open(id, req.Location, len(req.Items))
	default:
		return nil, fmt.Errorf("%q: %w", req.Kind, ErrUnknownKind)
	}
}

type deleteDatasetRequest struct {
	Name string `json:"name"`
}

type deleteDatasetResponse struct{}

func (h *Handler) deleteDataset(_ context.Context, req deleteDatasetRequest) (deleteDatasetResponse, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id, ok := h.datasetIDs[req.Name]
	if !ok {
		return deleteDatasetResponse{}, fmt.Errorf("dataset %q: %w", req.Name, ErrNotFound)
	}
	h.table.Del(id)
	delete(h.datasetIDs, req.Name)
	delete(h.datasetNames, id)
	return deleteDatasetResponse{}, nil
}

type exprDTO struct {
	Op  string `json:"op"`
	RHS string `json:"rhs"`
}

type conditionDTO struct {
	Exprs []exprDTO `json:"exprs"`
}

func (c *conditionDTO) toCondition() (*dataset.Condition, error) {
	if c == nil || len(c.Exprs) == 0 {
		return nil, nil
	}
	cond := &dataset.Condition{Exprs: make([]dataset.Expr, len(c.Exprs))}
	for i, e := range c.Exprs {
		op, err := parseOp(e.Op)
		if err != nil {
			return nil, err
		}
		cond.Exprs[i] = dataset.Expr{Op: op, RHS: e.RHS}
	}
	return cond, nil
}

func parseOp(s string) (dataset.Op, error) {
	switch s {
	case "lt":
		return dataset.OpLt, nil
	case "leq":
		return dataset.OpLeq, nil
	case "gt":
		return dataset.OpGt, nil
	case "geq":
		return dataset.OpGeq, nil
	case "eq":
		return dataset.OpEq, nil
	default:
		return 0, fmt.Errorf("rpcserver: unknown condition op %q", s)
	}
}

type createJobRequest struct {
	Name        string        `json:"name"`
	DatasetName string        `json:"dataset_name"`
	Condition   *conditionDTO `json:"condition,omitempty"`
}

type createJobResponse struct {
	JobID         uint64 `json:"job_id"`
	DatasetLength int    `json:"dataset_length"`
}

func (h *Handler) createJob(_ context.Context, req createJobRequest) (createJobResponse, error) {
	h.mu.Lock()
	datasetID, ok := h.datasetIDs[req.DatasetName]
	if !ok {
		h.mu.Unlock()
		return createJobResponse{}, fmt.Errorf("dataset %q: %w", req.DatasetName, ErrNotFound)
	}
	if _, exists := h.jobIDs[req.Name]; exists {
		h.mu.Unlock()
		return createJobResponse{}, fmt.Errorf("job %q: %w", req.Name, ErrAlreadyExists)
	}
	h.mu.Unlock()

	j, ok := h.table.GetMut(datasetID)
	if !ok {
		return createJobResponse{}, fmt.Errorf("dataset %q: %w", req.DatasetName, ErrNotFound)
	}

	cond, err := req.Condition.toCondition()
	if err != nil {
		return createJobResponse{}, err
	}

	id := h.idgen.NextJobID()
	job := jobqueue.New(id)
	length, err := j.AddJob(job, cond)
	if err != nil {
		return createJobResponse{}, fmt.Errorf("rpcserver: add job %q: %w", req.Name, err)
	}

	h.mu.Lock()
	h.jobIDs[req.Name] = id
	h.jobNames[id] = req.Name
	h.jobDataset[id] = datasetID
	h.jobs[id] = job
	h.mu.Unlock()

	return createJobResponse{JobID: id, DatasetLength: length}, nil
}

type nextRequest struct {
	JobID uint64 `json:"job_id"`
}

type nextResponse struct {
	Bytes []byte `json:"bytes"`
	Type  int    `json:"type"`
}

// next blocks until job JobID has a payload ready or the request's
// context is canceled, returning ErrDrained instead of blocking forever
// once the job has received every index it was ever subscribed to and
// its queue has gone empty.
func (h *Handler) next(ctx context.Context, req nextRequest) (nextResponse, error) {
	h.mu.Lock()
	job, ok := h.jobs[req.JobID]
	datasetID := h.jobDataset[req.JobID]
	h.mu.Unlock()
	if !ok {
		return nextResponse{}, fmt.Errorf("job %d: %w", req.JobID, ErrNotFound)
	}

	if j, ok := h.table.GetMut(datasetID); ok {
		if delivered, total, ok := j.Status(req.JobID); ok && delivered >= total && job.Len() == 0 {
			return nextResponse{}, fmt.Errorf("job %d: %w", req.JobID, ErrDrained)
		}
	}

	payload, err := job.Next(ctx)
	if err != nil {
		return nextResponse{}, fmt.Errorf("rpcserver: next job %d: %w", req.JobID, err)
	}
	return nextResponse{Bytes: payload.Bytes, Type: int(payload.Type)}, nil
}

type deleteJobRequest struct {
	Name        string `json:"name"`
	DatasetName string `json:"dataset_name"`
}

type deleteJobResponse struct{}

func (h *Handler) deleteJob(_ context.Context, req deleteJobRequest) (deleteJobResponse, error) {
	h.mu.Lock()
	datasetID, dsOK := h.datasetIDs[req.DatasetName]
	id, jobOK := h.jobIDs[req.Name]
	h.mu.Unlock()
	if !dsOK {
		return deleteJobResponse{}, fmt.Errorf("dataset %q: %w", req.DatasetName, ErrNotFound)
	}
	if !jobOK {
		return deleteJobResponse{}, fmt.Errorf("job %q: %w", req.Name, ErrNotFound)
	}

	if j, ok := h.table.GetMut(datasetID); ok {
		j.DelJob(id)
	}

	h.mu.Lock()
	delete(h.jobIDs, req.Name)
	delete(h.jobNames, id)
	delete(h.jobDataset, id)
	delete(h.jobs, id)
	h.mu.Unlock()
	return deleteJobResponse{}, nil
}
