// Package discovery aggregates scanner findings published by one or more
// discovery methods into a deduplicated list of devices.
//
// Three Publishers feed the aggregator: mdns (browsing _uscan._tcp and
// _uscans._tcp), wsd (WS-Discovery Probe/ProbeMatch) and hint (static,
// user-supplied endpoints). Each publishes Finding records identifying one
// observation of one device on one interface; the aggregator groups
// findings by UUID when known, else by (method, interface, name), merges
// their endpoints, and announces the resulting Device after a short
// publish delay so that addresses arriving a few packets apart land on the
// same device.
//
// This package and its subpackages never import anything else from this
// module: they depend only on the standard library and third-party
// discovery libraries, so they can be reused outside this project.
//
// Example:
//
//	iface, err := discovery.NewInterfaceInfo("")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	agg, err := discovery.NewAggregator(
//	    discovery.WithPublishers(mdns.New(iface), wsd.New(iface)),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	events := agg.Start(context.Background())
//	defer agg.Stop()
//
//	devices, err := agg.ListDevices(context.Background())
//	for _, d := range devices {
//	    fmt.Println(d.Ident(), d.Name(), d.Endpoints())
//	}
package discovery
