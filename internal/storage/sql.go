package storage

import (
	_ "embed"
)

const (
	initIndexesSQL = `
CREATE INDEX IF NOT EXISTS captures_run_seq_idx ON captures (run_id, seq);
CREATE INDEX IF NOT EXISTS captures_unix_time_idx ON captures (unix_time)`

	insertRunSQL = `
INSERT INTO runs (id,
                  started_at,
                  receiver,
                  generator,
                  config)
VALUES (?, ?, ?, ?, ?)`

	selectRunSQL = `
SELECT
    id,
    started_at,
    receiver,
    generator,
    config
FROM runs
WHERE
    id = ?`

	selectRunsSQL = `
SELECT
    id,
    started_at,
    receiver,
    generator,
    config
FROM runs
ORDER BY started_at`

	insertCaptureSQL = `
INSERT INTO captures (run_id,
                      seq,
                      kind,
                      prefix,
                      path,
                      unix_time,
                      jd,
                      lst,
                      sample_rate,
                      center_freq,
                      gain,
                      direct,
                      nblocks,
                      nsamples,
                      alt,
                      az,
                      siggen_freq,
                      siggen_amp,
                      siggen_rf_on,
                      size)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	selectCapturesSQL = `
SELECT
    id,
    run_id,
    seq,
    kind,
    prefix,
    path,
    unix_time,
    jd,
    lst,
    sample_rate,
    center_freq,
    gain,
    direct,
    nblocks,
    nsamples,
    alt,
    az,
    siggen_freq,
    siggen_amp,
    siggen_rf_on,
    size
FROM captures
WHERE
    run_id = ?
    AND (? = '' OR kind = ?)
    AND unix_time BETWEEN ? AND ?
ORDER BY seq`
)

//go:embed schema.sql
var initSchemaSQL string
