// Package guard implements the resource admission gate described in spec
// section 4.5: it decides whether it is safe to run heavy inference right
// now, based on free GPU memory and whether the user appears to be in the
// middle of a GPU- or CPU-heavy foreground activity (games, renders, …).
package guard

import (
	"bufio"
	"context"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/mnemosyne/brain/internal/logging"
)

// DefaultVisionThresholdBytes is the minimum free GPU memory required before
// the vision model is allowed to run (spec default: 4 GiB).
const DefaultVisionThresholdBytes int64 = 4 * 1024 * 1024 * 1024

// DefaultBlacklist is a representative set of well-known games and
// heavy-CPU applications that mark the user as "not idle" for inference
// purposes. Matching is case-insensitive and by substring against the
// running process name.
var DefaultBlacklist = []string{
	"csgo", "cs2", "valorant", "leagueoflegends", "league of legends",
	"dota2", "overwatch", "fortniteclient", "apex_legends", "r5apex",
	"pubg", "rainbowsix", "gta5", "rdr2", "cyberpunk2077",
	"eldenring", "warzone", "battlefield", "minecraft", "rocketleague",
	"destiny2", "warframe", "starcraft", "worldofwarcraft", "diablo",
	"obs64", "obs32", "handbrake", "blender", "davinci resolve",
}

var (
	safeToRunGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mnemosyne_brain_safe_to_run",
		Help: "1 if the resource guard last admitted a cycle, 0 otherwise.",
	})
	vramLimitSkips = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mnemosyne_brain_vram_limit_skips_total",
		Help: "Count of perception items skipped with a VRAM Limit sentinel.",
	})
)

func init() {
	prometheus.MustRegister(safeToRunGauge, vramLimitSkips)
}

// RecordVRAMSkip increments the VRAM-limit skip counter; called by the
// perception pipeline when the vision batch is abandoned for lack of
// memory (spec section 4.6, "[VRAM Limit] Skipped").
func RecordVRAMSkip() {
	vramLimitSkips.Inc()
}

// Guard answers admission-control questions for the periodic loop and for
// individual perception steps, which each consult it separately.
type Guard struct {
	visionThresholdBytes int64
	blacklist            []string
	// gpuQuery is overridable for tests.
	gpuQuery func(ctx context.Context) (int64, bool)
}

// New creates a Guard with the default 4 GiB vision threshold and process
// blacklist.
func New() *Guard {
	return &Guard{
		visionThresholdBytes: DefaultVisionThresholdBytes,
		blacklist:            DefaultBlacklist,
		gpuQuery:             queryNvidiaSMI,
	}
}

// WithVisionThreshold overrides the free-memory threshold required for
// can_run_vision_model.
func (g *Guard) WithVisionThreshold(bytes int64) *Guard {
	g.visionThresholdBytes = bytes
	return g
}

// WithBlacklist overrides the process blacklist used by is_user_active.
func (g *Guard) WithBlacklist(procs []string) *Guard {
	g.blacklist = procs
	return g
}

// FreeGPUBytes queries free GPU memory. It returns (bytes, true) on
// success, or (0, false) if the GPU telemetry subsystem is unavailable
// (fail-closed: callers must treat false as "cannot run").
func (g *Guard) FreeGPUBytes(ctx context.Context) (int64, bool) {
	if g.gpuQuery == nil {
		return 0, false
	}
	return g.gpuQuery(ctx)
}

// CanRunVisionModel reports whether free GPU memory is at or above the
// configured threshold. Fails closed: unavailable telemetry means false.
func (g *Guard) CanRunVisionModel(ctx context.Context) bool {
	free, ok := g.FreeGPUBytes(ctx)
	if !ok {
		return false
	}
	return free >= g.visionThresholdBytes
}

// CheckAvailable reports whether free GPU memory is at least thresholdMB
// megabytes.
func (g *Guard) CheckAvailable(ctx context.Context, thresholdMB int64) bool {
	free, ok := g.FreeGPUBytes(ctx)
	if !ok {
		return false
	}
	return free >= thresholdMB*1024*1024
}

// IsUserActive reports true when no blacklisted process name is currently
// running — i.e. the user is not mid-game or mid-render, so it is polite to
// spend GPU/CPU cycles on enrichment.
func (g *Guard) IsUserActive(ctx context.Context) bool {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		logging.Debug().Err(err).Msg("guard: failed to enumerate processes")
		return true
	}

	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil || name == "" {
			continue
		}
		lower := strings.ToLower(name)
		for _, blocked := range g.blacklist {
			if strings.Contains(lower, blocked) {
				return false
			}
		}
	}
	return true
}

// SafeToRun gates the periodic loop: can_run_vision_model() AND
// is_user_active().
func (g *Guard) SafeToRun(ctx context.Context) bool {
	safe := g.CanRunVisionModel(ctx) && g.IsUserActive(ctx)
	if safe {
		safeToRunGauge.Set(1)
	} else {
		safeToRunGauge.Set(0)
	}
	return safe
}

// queryNvidiaSMI shells out to nvidia-smi for free GPU memory. No pack
// example wraps NVML directly; this follows the same "wrap an external
// process for OS-level telemetry" shape gopsutil uses internally for CPU
// and memory stats, just pointed at a GPU vendor tool instead of /proc.
func queryNvidiaSMI(ctx context.Context) (int64, bool) {
	queryCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	cmd := exec.CommandContext(queryCtx, "nvidia-smi",
		"--query-gpu=memory.free", "--format=csv,noheader,nounits")
	out, err := cmd.Output()
	if err != nil {
		return 0, false
	}

	scanner := bufio.NewScanner(strings.NewReader(string(out)))
	var bestFreeMB int64 = -1
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		mb, err := strconv.ParseInt(line, 10, 64)
		if err != nil {
			continue
		}
		if mb > bestFreeMB {
			bestFreeMB = mb
		}
	}
	if bestFreeMB < 0 {
		return 0, false
	}
	return bestFreeMB * 1024 * 1024, true
}
