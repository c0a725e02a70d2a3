// Package mqtt provides broker connectivity for push delivery.
//
// This package manages:
//   - Parsing the broker URI devices are given (tcp, mqtt, ssl, mqtts, tls)
//   - Loading the per-domain PKCS#12 keystore for secure transports
//   - A publish-only paho client with QoS and topic validation
//   - The ConnectionManager: startup connect with bounded retries,
//     publish-triggered reconnects and first-connect hooks
//
// # Embedded and external brokers
//
// With an embedded broker the server's own client always dials localhost on
// the configured port, while devices use the public host from the URI. The
// broker certificate names the public host, so for this one case hostname
// verification is off; the certificate chain is still verified.
//
// # Usage
//
//	mgr, err := mqtt.NewConnectionManager(mqtt.ManagerConfig{
//	    URI:              cfg.MQTT.URI,
//	    External:         cfg.MQTT.ExternalBroker,
//	    ClientID:         clientID,
//	    KeystoreDir:      cfg.MQTT.TLS.KeystoreDir,
//	    KeystorePassword: cfg.MQTT.TLS.KeystorePassword,
//	}, mqtt.WithLogger(log))
//	if err != nil {
//	    return err // bad URI or keystore
//	}
//	mgr.OnFirstConnect(func() { sender.Start(ctx) })
//	if err := mgr.Connect(ctx); err != nil {
//	    return err
//	}
//	defer mgr.Close()
//
//	if c, ok := mgr.Client(); ok {
//	    if err := c.Publish("h0001", payload, 2, false); err != nil {
//	        mgr.Reconnect(ctx)
//	    }
//	}
package mqtt
