package main

import (
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"wavelet-signal-go/config"
	"wavelet-signal-go/market"
	"wavelet-signal-go/pipeline"
)

// 离线去噪：读取价格序列 CSV，按 bar 滚动跑 pipeline，输出去噪值/趋势/波动率。
// 用法：
//
//	go run ./cmd/denoise -input data/closes.csv -family db4 -levels 4 -out denoised.csv
//	cat closes.csv | go run ./cmd/denoise -batch
func main() {
	cfgPath := flag.String("config", "", "配置文件路径（可选，只读取 pipeline 段）")
	input := flag.String("input", "-", "输入 CSV，- 表示 stdin；列为 value 或 ts,value")
	outPath := flag.String("out", "-", "输出 CSV，- 表示 stdout")
	family := flag.String("family", "", "小波族（覆盖配置）：haar, db2, db3, db4")
	levels := flag.Int("levels", 0, "分解层数（覆盖配置）")
	window := flag.Int("window", 0, "滚动窗口长度（覆盖配置）")
	rule := flag.String("rule", "", "阈值规则（覆盖配置）：universal, bayes, sure, hybrid_sure, none")
	mode := flag.String("mode", "", "收缩方式（覆盖配置）：hard, soft")
	batch := flag.Bool("batch", false, "整段序列一次性去噪，不做滚动窗口")
	flag.Parse()

	cfg := pipeline.DefaultConfig()
	if *cfgPath != "" {
		app, err := config.LoadWithEnvOverrides(*cfgPath)
		if err != nil {
			log.Fatalf("加载配置失败: %v", err)
		}
		cfg = app.Pipeline
	}
	if err := applyOverrides(&cfg, *family, *levels, *window, *rule, *mode); err != nil {
		log.Fatalf("参数覆盖失败: %v", err)
	}

	in, err := openInput(*input)
	if err != nil {
		log.Fatalf("打开输入失败: %v", err)
	}
	defer in.Close()
	points, err := loadSeries(in)
	if err != nil {
		log.Fatalf("读取序列失败: %v", err)
	}
	if len(points) == 0 {
		log.Fatal("输入序列为空")
	}

	var rows []row
	if *batch {
		cfg.WindowSize = len(points)
		rows, err = runBatch(cfg, points)
	} else {
		rows, err = runRolling(cfg, points)
	}
	if err != nil {
		log.Fatalf("去噪失败: %v", err)
	}

	out := io.Writer(os.Stdout)
	if *outPath != "-" {
		f, err := os.Create(*outPath)
		if err != nil {
			log.Fatalf("创建输出失败: %v", err)
		}
		defer f.Close()
		out = f
	}
	if err := writeRows(out, rows); err != nil {
		log.Fatalf("写入输出失败: %v", err)
	}
	st := computeStats(rows)
	log.Printf("points=%d rows=%d family=%s levels=%d rule=%s residualRMS=%.6f lastVol=%.6f",
		len(points), len(rows), cfg.Family, cfg.Levels, cfg.Rule, st.ResidualRMS, st.LastVolatility)
}

type point struct {
	Ts    time.Time
	Value float64
}

type row struct {
	Ts         time.Time
	Value      float64
	Denoised   float64
	Trend      float64
	Volatility float64
}

// applyOverrides 用命令行参数覆盖 pipeline 配置。
// 修改 levels 时：原本全量重构的保持全量重构；shrinkLevels 过滤后为空则报错，
// 避免空列表被当成“全部层”。
func applyOverrides(cfg *pipeline.Config, family string, levels, window int, rule, mode string) error {
	if family != "" {
		cfg.Family = family
	}
	if levels > 0 {
		if cfg.ReconstructLevel == cfg.Levels || cfg.ReconstructLevel > levels {
			cfg.ReconstructLevel = levels
		}
		cfg.Levels = levels
		if len(cfg.ShrinkLevels) > 0 {
			kept := make([]int, 0, len(cfg.ShrinkLevels))
			for _, l := range cfg.ShrinkLevels {
				if l <= levels {
					kept = append(kept, l)
				}
			}
			if len(kept) == 0 {
				return fmt.Errorf("levels=%d drops every configured shrink level %v", levels, cfg.ShrinkLevels)
			}
			cfg.ShrinkLevels = kept
		}
	}
	if window > 0 {
		cfg.WindowSize = window
	}
	if rule != "" {
		cfg.Rule = rule
	}
	if mode != "" {
		cfg.Mode = mode
	}
	return nil
}

func openInput(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	return os.Open(path)
}

// loadSeries 读取 value 或 ts,value 两种格式；无法解析的行（如表头）跳过。
// ts 支持 unix 毫秒或 RFC3339。
func loadSeries(r io.Reader) ([]point, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	var out []point
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(rec) == 0 {
			continue
		}
		p := point{Ts: time.Unix(int64(len(out)), 0).UTC()}
		raw := rec[0]
		if len(rec) >= 2 {
			ts, ok := parseTs(rec[0])
			if !ok {
				continue
			}
			p.Ts, raw = ts, rec[1]
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		p.Value = v
		out = append(out, p)
	}
	return out, nil
}

func parseTs(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), true
	}
	return time.Time{}, false
}

// runRolling 每个点作为一根 bar 喂给 pipeline，窗口满后每点输出一行。
func runRolling(cfg pipeline.Config, points []point) ([]row, error) {
	p, err := pipeline.New(cfg)
	if err != nil {
		return nil, err
	}
	rows := make([]row, 0, len(points))
	for _, pt := range points {
		out, err := p.OnBar(market.Bar{Open: pt.Value, High: pt.Value, Low: pt.Value, Close: pt.Value, Ts: pt.Ts})
		if errors.Is(err, pipeline.ErrWarmingUp) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("bar %s: %w", pt.Ts.Format(time.RFC3339), err)
		}
		rows = append(rows, row{
			Ts:         pt.Ts,
			Value:      pt.Value,
			Denoised:   out.Last,
			Trend:      out.TrendLast,
			Volatility: out.Volatility,
		})
	}
	return rows, nil
}

// runBatch 整段序列做一次分解/收缩/重构。
func runBatch(cfg pipeline.Config, points []point) ([]row, error) {
	p, err := pipeline.New(cfg)
	if err != nil {
		return nil, err
	}
	series := make([]float64, len(points))
	for i, pt := range points {
		series[i] = pt.Value
	}
	out, err := p.Process(series)
	if err != nil {
		return nil, err
	}
	rows := make([]row, len(points))
	for i, pt := range points {
		rows[i] = row{
			Ts:         pt.Ts,
			Value:      pt.Value,
			Denoised:   out.Denoised[i],
			Trend:      out.Trend[i],
			Volatility: out.Volatility,
		}
	}
	return rows, nil
}

func writeRows(w io.Writer, rows []row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"ts", "value", "denoised", "trend", "volatility"}); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{
			strconv.FormatInt(r.Ts.UnixMilli(), 10),
			strconv.FormatFloat(r.Value, 'f', -1, 64),
			strconv.FormatFloat(r.Denoised, 'f', -1, 64),
			strconv.FormatFloat(r.Trend, 'f', -1, 64),
			strconv.FormatFloat(r.Volatility, 'f', -1, 64),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

type statsResult struct {
	ResidualRMS    float64
	LastVolatility float64
}

func computeStats(rows []row) statsResult {
	if len(rows) == 0 {
		return statsResult{}
	}
	var sum float64
	for _, r := range rows {
		d := r.Value - r.Denoised
		sum += d * d
	}
	return statsResult{
		ResidualRMS:    math.Sqrt(sum / float64(len(rows))),
		LastVolatility: rows[len(rows)-1].Volatility,
	}
}
