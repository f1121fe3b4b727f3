// Package ptm215b turns advertisements from an EnOcean PTM215B switch into
// button state changes.
//
// A Device is bound to one switch address. Each advertisement runs through
// the same pipeline:
//
//	filter (address, manufacturer) -> decode -> freshness -> authenticate -> commit
//
// Authentication applies to data telegrams only and is skipped when the
// configured key is all zeros. Any failed step returns a classified Outcome
// and leaves the device state untouched. Accepted data telegrams update the
// sequence counter and switch status together, then every registered button
// observer receives its state. Accepted commissioning telegrams update the
// sequence counter and hand the transmitted key to the KeySink.
//
// Basic usage:
//
//	dev, err := ptm215b.NewDevice(ptm215b.Config{
//	    Address: addr,
//	    Key:     key,
//	    Observers: map[ptm215b.Button]ptm215b.Observer{
//	        ptm215b.ButtonA0: ptm215b.ObserverFunc(func(on bool) { ... }),
//	    },
//	})
//
//	res := dev.HandleAdvertisement(addr, 0x03DA, payload)
//	if !res.Accepted() { ... }
package ptm215b
