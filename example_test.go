package tofcan_test

import (
	"fmt"

	"github.com/notnil/tofcan"
	"github.com/notnil/tofcan/processing"
)

func ExampleEncodeConfig() {
	cfg := tofcan.DefaultConfig()
	cfg.Mode = processing.ColumnMode(3, processing.SelectAverage)
	f, err := tofcan.EncodeConfig(5, cfg)
	if err != nil {
		panic(err)
	}
	fmt.Println(f)
	// Output: 6C5 [8] 40 0F 05 63 E8 03 03 00
}

func ExampleReceiver() {
	r := tofcan.NewReceiver(tofcan.Handlers{
		Batch: func(sensor int, b tofcan.Batch, valid bool) {
			fmt.Println(sensor, valid, b.Samples())
		},
	})
	packets, _ := tofcan.Packetize(3, []int16{7, 8, 9, 10, 11, 12, 13})
	for i := len(packets) - 1; i >= 0; i-- {
		f, _ := tofcan.EncodeDataPacket(5, packets[i])
		r.HandleFrame(f)
	}
	// Output: 5 true [7 8 9 10 11 12 13]
}
