package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"grid-maker-go/config"
	"grid-maker-go/infrastructure/logger"
	"grid-maker-go/internal/backtest"
	"grid-maker-go/internal/engine"
)

// 多 symbol 网格回测：按 CSV 价格序列驱动网格，纸面撮合。
// 用法：
//
//	go run ./cmd/backtest -config configs/grid.yaml -symbols XRPUSDC:data/xrp.csv,ETHUSDC:data/eth.csv -step 1s -out summaries.csv
func main() {
	cfgPath := flag.String("config", "configs/grid.yaml", "配置文件路径")
	symbolFiles := flag.String("symbols", "XRPUSDC:data/xrp_sample.csv", "symbol:csv 列表，逗号分隔")
	step := flag.Duration("step", time.Second, "相邻价格的时间间隔")
	syncEvery := flag.Int("syncEvery", 0, "每 N 个价格对账一次，0 不对账")
	outPath := flag.String("out", "", "若指定则写入 CSV 汇总")
	verbose := flag.Bool("v", false, "输出网格日志")
	flag.Parse()

	cfg, err := config.LoadWithEnvOverrides(*cfgPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	entries := parseSymbolFiles(*symbolFiles)
	if len(entries) == 0 {
		log.Fatal("未指定任何 symbol:csv")
	}

	lg := logger.NewNop()
	if *verbose {
		if lg, err = logger.New(cfg.Logging); err != nil {
			log.Fatalf("创建日志失败: %v", err)
		}
		defer lg.Close()
	}

	var results []backtest.Result
	for _, entry := range entries {
		sym := strings.ToUpper(entry.symbol)
		conf, ok := cfg.Symbols[sym]
		if !ok {
			log.Printf("symbol %s 不在配置中，跳过", sym)
			continue
		}
		settings, err := engine.SettingsFromConfig(sym, conf, cfg.Sync)
		if err != nil {
			log.Printf("symbol %s 参数无效: %v", sym, err)
			continue
		}

		prices, err := loadPrices(entry.path)
		if err != nil {
			log.Printf("symbol %s 读取 %s 失败: %v", sym, entry.path, err)
			continue
		}
		if len(prices) == 0 {
			log.Printf("symbol %s 数据为空: %s", sym, entry.path)
			continue
		}

		res, err := backtest.Run(context.Background(), settings, prices, backtest.Options{
			Step:      *step,
			SyncEvery: *syncEvery,
			Logger:    lg,
		})
		if err != nil {
			log.Printf("symbol %s 回测失败: %v", sym, err)
			continue
		}
		log.Printf("symbol=%s prices=%d entries=%d simulated=%d fills=%d closed=%d pnl=%.6f rebuilds=%d open=%d net=%.6f min=%.6f max=%.6f maxDD=%.4f%%",
			sym, res.Count, res.Entries, res.Simulated, res.Fills, res.PositionsClosed, res.RealizedPnL, res.Rebuilds,
			res.OpenOrders, res.NetExposure, res.Min, res.Max, res.MaxDrawdownPct)
		results = append(results, res)
	}

	if *outPath != "" {
		if err := writeSummaryCSV(*outPath, results); err != nil {
			log.Printf("写入汇总 CSV 失败: %v", err)
		} else {
			log.Printf("已写入汇总: %s", *outPath)
		}
	}
}

type symbolFile struct {
	symbol string
	path   string
}

func parseSymbolFiles(arg string) []symbolFile {
	if strings.TrimSpace(arg) == "" {
		return nil
	}
	parts := strings.Split(arg, ",")
	var out []symbolFile
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		items := strings.SplitN(p, ":", 2)
		if len(items) != 2 {
			continue
		}
		out = append(out, symbolFile{symbol: strings.TrimSpace(items[0]), path: strings.TrimSpace(items[1])})
	}
	return out
}

// loadPrices 读取首列价格；表头等无法解析的行跳过。
func loadPrices(path string) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	out := make([]float64, 0, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(row[0]), 64)
		if err != nil {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

func writeSummaryCSV(path string, results []backtest.Result) error {
	if len(results) == 0 {
		return fmt.Errorf("no summary data")
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	defer w.Flush()
	header := []string{"symbol", "count", "min", "max", "mean", "maxDrawdownPct",
		"entries", "simulated", "skipped", "fills", "rebuilds", "errors", "openOrders", "netExposure", "finalState",
		"positionsClosed", "wins", "losses", "realizedPnl"}
	if err := w.Write(header); err != nil {
		return err
	}
	for _, s := range results {
		record := []string{
			s.Symbol,
			strconv.Itoa(s.Count),
			fmt.Sprintf("%.6f", s.Min),
			fmt.Sprintf("%.6f", s.Max),
			fmt.Sprintf("%.6f", s.Mean),
			fmt.Sprintf("%.6f", s.MaxDrawdownPct),
			strconv.FormatInt(s.Entries, 10),
			strconv.FormatInt(s.Simulated, 10),
			strconv.FormatInt(s.Skipped, 10),
			strconv.FormatInt(s.Fills, 10),
			strconv.FormatInt(s.Rebuilds, 10),
			strconv.FormatInt(s.Errors, 10),
			strconv.Itoa(s.OpenOrders),
			fmt.Sprintf("%.8f", s.NetExposure),
			string(s.FinalState),
			strconv.FormatInt(s.PositionsClosed, 10),
			strconv.FormatInt(s.Wins, 10),
			strconv.FormatInt(s.Losses, 10),
			fmt.Sprintf("%.8f", s.RealizedPnL),
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	return nil
}
