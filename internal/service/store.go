package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"traffic-exp/internal/model"

	"gorm.io/gorm"
)

const (
	FailureDispatch      = "dispatch"
	FailureClientTimeout = "client_timeout"
	FailureClientExit    = "client_exit"
	FailureEmptyLog      = "empty_log"
	FailureMalformedLog  = "malformed_log"
	FailureOther         = "other"
)

func (r *ExperimentRunner) createRun(ctx context.Context, result *ExperimentResult) uint {
	if r.db == nil {
		return 0
	}
	hostsJSON, _ := json.Marshal(result.Hosts)
	rrJSON, _ := json.Marshal(result.RequestResponseHosts)
	run := &model.ExperimentRun{
		TraceFile:                result.TraceFile,
		LogDir:                   result.LogDir,
		Protocol:                 result.Protocol,
		Port:                     result.Port,
		HostsJSON:                string(hostsJSON),
		RequestResponseHostsJSON: string(rrJSON),
		DurationSeconds:          result.DurationSeconds,
		Status:                   model.RunStatusRunning,
	}
	if err := r.db.WithContext(ctx).Create(run).Error; err != nil {
		log.Printf("warning: save experiment run: %v\n", err)
		return 0
	}
	result.RunID = run.ID
	return run.ID
}

func (r *ExperimentRunner) finishRun(runID uint, result *ExperimentResult) {
	if r.db == nil || runID == 0 {
		return
	}

	status := model.RunStatusCompleted
	if result.Interrupted {
		status = model.RunStatusInterrupted
	}
	updates := map[string]interface{}{
		"status":      status,
		"epoch_unix":  result.Epoch.Unix(),
		"result_path": result.ResultPath,
		"report_path": result.ReportPath,
	}
	if s := result.Score; s != nil {
		updates["throughput_valid"] = s.Throughput.Valid
		updates["throughput_avg"] = s.Throughput.Average
		updates["throughput_score"] = s.Throughput.LogMean
		updates["throughput_samples"] = s.Throughput.Samples
		updates["latency_valid"] = s.Latency.Valid
		updates["latency_avg"] = s.Latency.Average
		updates["latency_score"] = s.Latency.LogMean
		updates["latency_samples"] = s.Latency.Samples
		updates["weight_a"] = s.Weights.A
		updates["weight_b"] = s.Weights.B
		updates["final_score"] = s.Final
	}
	if err := r.db.Model(&model.ExperimentRun{}).Where("id = ?", runID).Updates(updates).Error; err != nil {
		log.Printf("warning: update experiment run %d: %v\n", runID, err)
	}

	rows := failureRows(runID, result.errs)
	if len(rows) == 0 {
		return
	}
	if err := r.db.Create(&rows).Error; err != nil {
		log.Printf("warning: save failures of run %d: %v\n", runID, err)
	}
}

func failureRows(runID uint, errs []error) []model.RunFailure {
	rows := make([]model.RunFailure, 0, len(errs))
	for _, err := range errs {
		row := model.RunFailure{RunID: runID, Kind: FailureOther, Message: err.Error()}

		var de *DispatchError
		var cte *ClientTimeoutError
		var cee *ClientExitError
		var ele *EmptyLogError
		var mle *MalformedLogError
		switch {
		case errors.As(err, &de):
			row.Kind, row.Host, row.Workload = FailureDispatch, de.Host, de.Workload
		case errors.As(err, &cte):
			row.Kind, row.Host, row.Workload = FailureClientTimeout, cte.Host, cte.Workload
		case errors.As(err, &cee):
			row.Kind, row.Host, row.Workload = FailureClientExit, cee.Host, cee.Workload
		case errors.As(err, &ele):
			row.Kind, row.Host = FailureEmptyLog, ele.Host
		case errors.As(err, &mle):
			row.Kind, row.Host = FailureMalformedLog, mle.Host
		}
		rows = append(rows, row)
	}
	return rows
}

// ListRuns returns the newest runs first.
func ListRuns(ctx context.Context, db *gorm.DB, limit int) ([]model.ExperimentRun, error) {
	var runs []model.ExperimentRun
	query := db.WithContext(ctx).Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("list experiment runs: %w", err)
	}
	return runs, nil
}

// GetRun loads one run with its failures. It returns gorm.ErrRecordNotFound for unknown ids.
func GetRun(ctx context.Context, db *gorm.DB, id uint) (*model.ExperimentRun, error) {
	var run model.ExperimentRun
	if err := db.WithContext(ctx).Preload("Failures").First(&run, id).Error; err != nil {
		return nil, err
	}
	return &run, nil
}
