package db

import (
	"go.uber.org/zap"

	"github.com/lucasnoah/rootcause/internal/pipeline"
)

// Recorder is a pipeline.Observer that writes run history. Write failures
// are logged and never interrupt a run.
type Recorder struct {
	db     *DB
	logger *zap.Logger
}

// NewRecorder creates a Recorder.
func NewRecorder(d *DB, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{db: d, logger: logger}
}

var _ pipeline.Observer = (*Recorder)(nil)

func (r *Recorder) RunStarted(st *pipeline.State) {
	if err := r.db.UpsertRun(runFromState(st)); err != nil {
		r.logger.Warn("record run start", zap.String("run_id", st.RunID), zap.Error(err))
	}
}

func (r *Recorder) StageFinished(ev pipeline.StageEvent) {
	a := StageAttempt{
		RunID:     ev.RunID,
		Stage:     string(ev.Stage),
		Attempt:   ev.Attempt,
		Succeeded: ev.Err == nil,
		Duration:  ev.Duration,
		Message:   ev.Message,
	}
	if ev.Err != nil {
		a.Error = ev.Err.Error()
	}
	if err := r.db.LogStageAttempt(a); err != nil {
		r.logger.Warn("record stage attempt", zap.String("run_id", ev.RunID), zap.String("stage", a.Stage), zap.Error(err))
	}
}

func (r *Recorder) RunFinished(st *pipeline.State) {
	if err := r.db.UpsertRun(runFromState(st)); err != nil {
		r.logger.Warn("record run finish", zap.String("run_id", st.RunID), zap.Error(err))
		return
	}
	if err := r.db.ReplaceMessages(st.RunID, st.Messages); err != nil {
		r.logger.Warn("record run messages", zap.String("run_id", st.RunID), zap.Error(err))
	}
}

func runFromState(st *pipeline.State) Run {
	r := Run{
		RunID:        st.RunID,
		Repo:         st.Repo,
		Phase:        string(st.Phase),
		FinishReason: string(st.FinishReason),
		ErrorMessage: st.ErrorMessage,
		StartedAt:    st.StartedAt,
	}
	if st.CompletedAt != nil {
		r.CompletedAt = *st.CompletedAt
	}
	if st.Log != nil {
		r.WorkflowRunID = st.Log.WorkflowRunID
	}
	if st.Parse != nil {
		r.ErrorCount = st.Parse.ErrorCount
	}
	if st.Primary != nil {
		r.ErrorType = st.Primary.ErrorType
		r.Category = string(st.Primary.Category)
	}
	if st.Triage != nil {
		r.Severity = string(st.Triage.Severity)
		if st.Triage.Category != "" {
			r.Category = string(st.Triage.Category)
		}
	}
	return r
}
