// Package process supervises the runtime bridge when Tracker Core runs on
// the same machine as the VR runtime.
//
// The Manager starts the bridge in its own process group, logs its output,
// restarts it with exponential backoff and kills it when its health check
// (snapshot freshness) fails three times in a row. A bridge that exits with
// EX_CONFIG (78) is not restarted.
//
//	mgr := process.NewManager(process.BridgeConfig(cfg.Runtime.Bridge, health))
//	mgr.SetLogger(log)
//	if err := mgr.Start(ctx); err != nil {
//	    return err
//	}
//	defer mgr.Stop()
package process
