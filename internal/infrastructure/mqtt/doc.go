// Package mqtt provides MQTT client connectivity for Tracker Core.
//
// MQTT links Tracker Core with the headset-side bridge that talks to the
// VR tracking runtime, and carries moved events to other consumers:
//
//	VR runtime ↔ bridge ↔ MQTT broker ↔ Tracker Core ↔ MQTT broker → consumers
//
// Topic layout:
//
//	tracker/runtime/snapshot       bridge → core, device snapshot per frame
//	tracker/runtime/status         bridge → core, retained connection status
//	tracker/runtime/config         core → bridge, retained settings
//	tracker/event/moved/{serial}   core → consumers, moved notifications
//	tracker/system/status          core, retained online/offline (LWT)
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.RuntimeStatus(), 1, handleStatus)
package mqtt
