package config

import (
	"log"
	"os"
	"strconv"
	"time"
)

type Config struct {
	HTTPPort    string
	DatabaseDSN string
	JWTSecret   string
	CORSOrigins string

	// Integração Bling (ERP / emissão de NF-e)
	BlingBaseURL      string
	BlingClientID     string
	BlingClientSecret string
	BlingTimeout      time.Duration // timeout por chamada ao gateway
}

func Load() *Config {
	cfg := &Config{
		HTTPPort:          getEnv("HTTP_PORT", "8080"),
		DatabaseDSN:       getEnv("DATABASE_DSN", "host=localhost user=postgres password=postgres dbname=ebd port=5432 sslmode=disable"),
		JWTSecret:         getEnv("JWT_SECRET", ""),
		CORSOrigins:       getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
		BlingBaseURL:      getEnv("BLING_BASE_URL", "https://api.bling.com.br/v3"),
		BlingClientID:     getEnv("BLING_CLIENT_ID", ""),
		BlingClientSecret: getEnv("BLING_CLIENT_SECRET", ""),
		BlingTimeout:      time.Duration(getEnvInt("BLING_TIMEOUT_SECONDS", 30)) * time.Second,
	}

	// Verificações de segurança para produção
	if cfg.JWTSecret == "" {
		log.Fatal("[FATAL] Variável de ambiente JWT_SECRET não definida! Obrigatória em produção.")
	}
	if len(cfg.JWTSecret) < 32 {
		log.Fatal("[FATAL] JWT_SECRET precisa ter no mínimo 32 caracteres! Risco de segurança.")
	}
	if cfg.BlingClientID == "" || cfg.BlingClientSecret == "" {
		log.Println("[WARN] Credenciais do Bling não configuradas, aprovação de propostas vai falhar ao emitir NF-e.")
	}
	if cfg.CORSOrigins == "http://localhost:5173" {
		log.Println("[WARN] CORS_ALLOWED_ORIGINS usando valor padrão, configure o domínio real em produção.")
	}

	return cfg
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
