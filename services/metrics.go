package services

import "github.com/prometheus/client_golang/prometheus"

var (
	backupsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "backups_total",
		Help: "Backup runs by outcome",
	}, []string{"outcome"})
	backupBytesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "backup_bytes_total",
		Help: "Bytes streamed to remotes by successful backups",
	})
	retentionDeletedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "retention_deleted_total",
		Help: "Artifacts removed by retention sweeps",
	})
	remoteOperationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "remote_operations_total",
		Help: "Remote provisioning operations by kind",
	}, []string{"operation"})
)

func init() {
	prometheus.MustRegister(backupsTotal, backupBytesTotal, retentionDeletedTotal, remoteOperationsTotal)
}
