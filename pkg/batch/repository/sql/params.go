package sql

import (
	"context"
	"database/sql"
	"fmt"

	core "batchadmin/pkg/batch/job/core"
)

// insertJobParameters は batch_job_execution_params に型ごとの列で保存します。
func insertJobParameters(ctx context.Context, q querier, executionID string, params core.JobParameters) error {
	for _, key := range params.Keys() {
		param := params.Params[key]
		var (
			stringVal sql.NullString
			longVal   sql.NullInt64
			doubleVal sql.NullFloat64
			dateVal   interface{}
		)
		switch param.Type {
		case core.ParameterTypeLong:
			v, _ := params.GetLong(key)
			longVal = sql.NullInt64{Int64: v, Valid: true}
		case core.ParameterTypeDouble:
			v, _ := params.GetDouble(key)
			doubleVal = sql.NullFloat64{Float64: v, Valid: true}
		case core.ParameterTypeDate:
			v, _ := params.GetDate(key)
			dateVal = nullableTime(v)
		default:
			stringVal = sql.NullString{String: param.String(), Valid: true}
		}
		identifying := "N"
		if param.Identifying {
			identifying = "Y"
		}
		paramType := param.Type
		if paramType == "" {
			paramType = core.ParameterTypeString
		}
		_, err := q.ExecContext(ctx,
			"INSERT INTO batch_job_execution_params (job_execution_id, parameter_name, parameter_type, string_val, long_val, double_val, date_val, identifying) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
			executionID, key, string(paramType), stringVal, longVal, doubleVal, dateVal, identifying,
		)
		if err != nil {
			return fmt.Errorf("パラメータ '%s' の保存に失敗しました: %w", key, err)
		}
	}
	return nil
}

// loadJobParameters は JobExecution のパラメータを復元します。
func loadJobParameters(ctx context.Context, q querier, executionID string) (core.JobParameters, error) {
	params := core.NewJobParameters()
	rows, err := q.QueryContext(ctx,
		"SELECT parameter_name, parameter_type, string_val, long_val, double_val, date_val, identifying FROM batch_job_execution_params WHERE job_execution_id = ?",
		executionID,
	)
	if err != nil {
		return params, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			name, paramType, identifying string
			stringVal                    sql.NullString
			longVal                      sql.NullInt64
			doubleVal                    sql.NullFloat64
			dateVal                      sql.NullTime
		)
		if err := rows.Scan(&name, &paramType, &stringVal, &longVal, &doubleVal, &dateVal, &identifying); err != nil {
			return params, err
		}
		param := core.JobParameter{Type: core.ParameterType(paramType), Identifying: identifying == "Y"}
		switch param.Type {
		case core.ParameterTypeLong:
			param.Value = longVal.Int64
		case core.ParameterTypeDouble:
			param.Value = doubleVal.Float64
		case core.ParameterTypeDate:
			param.Value = dateVal.Time
		default:
			param.Value = stringVal.String
		}
		params.PutParameter(name, param)
	}
	return params, rows.Err()
}
