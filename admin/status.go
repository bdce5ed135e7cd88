/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

package admin

import (
	"os"
	"time"

	"github.com/nabbar/proxycore/backend"
	monsts "github.com/nabbar/proxycore/monitor/status"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/process"
)

var processStart = time.Now()

// statusData collects the worker's own figures: process-level resources, per-cluster
// backend health, and the current metric families from the process registry.
func (p *Plane) statusData() map[string]interface{} {
	data := map[string]interface{}{
		"uptime": time.Since(processStart).String(),
	}

	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if mem, err := proc.MemoryInfo(); err == nil && mem != nil {
			data["rss"] = mem.RSS
		}
		if fds, err := proc.NumFDs(); err == nil {
			data["openFds"] = fds
		}
		if cpu, err := proc.Percent(0); err == nil {
			data["cpuPercent"] = cpu
		}
	}

	clusters := map[string]interface{}{}

	p.registry.Walk(func(c *backend.Cluster) {
		var healthy, total int

		for _, b := range c.Backends() {
			total++
			if b.Eligible() {
				healthy++
			}
		}

		health := monsts.OK
		switch {
		case healthy == 0 && total > 0:
			health = monsts.KO
		case healthy < total:
			health = monsts.Warn
		}

		clusters[c.ID] = map[string]interface{}{
			"backends": total,
			"healthy":  healthy,
			"health":   health.String(),
		}
	})

	data["clusters"] = clusters

	if families, err := prometheus.DefaultGatherer.Gather(); err == nil {
		metrics := map[string]int{}
		for _, f := range families {
			metrics[f.GetName()] = len(f.GetMetric())
		}
		data["metricFamilies"] = metrics
	}

	return data
}
