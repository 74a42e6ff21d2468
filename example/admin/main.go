package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"batchadmin/example/admin/app"
	"batchadmin/example/admin/resources"
	logger "batchadmin/pkg/batch/util/logger"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Ctrl+C などで実行中のジョブを停止してから終了する
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Warnf("シグナル '%v' を受信しました。ジョブの停止を試みます...", sig)
		cancel()
	}()

	exitCode := app.RunApplication(ctx, os.Args[1:], os.Stdout, resources.ApplicationYAML, resources.JobDefinitions)
	os.Exit(exitCode)
}
