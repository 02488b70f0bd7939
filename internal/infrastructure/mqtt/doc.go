// Package mqtt publishes item mutation events to an MQTT broker.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Publishing with QoS guarantees
//   - Last Will and Testament (LWT) for offline detection
//
// # Topics
//
//	envio/items/{id}/{action}   item events (created, replaced, updated, deleted)
//	envio/system/status         retained online/offline status
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.PublishItemEvent(mqtt.ItemEvent{Action: "created", ItemID: 1, Item: created})
package mqtt
